// Package paginate moves a listing page to its next page of results.
package paginate
