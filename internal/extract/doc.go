// Package extract finds product URLs on a loaded listing page.
//
// Extraction runs in up to three tiers, each tried only when the previous
// one found no product:
//
//  1. the site profile's product containers and link selectors
//  2. the generic profile's containers and link selectors
//  3. every anchor on the page
//
// Links are resolved against the session origin, normalized by the site
// capability and classified. Product URLs enter the session's product set;
// category and pagination links seen in tiers 1 and 2 are recorded in
// their own sets.
package extract
