// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing trace events, pre-populated session
// memory and stub provider servers. They are not intended for production
// usage.
package testutil
