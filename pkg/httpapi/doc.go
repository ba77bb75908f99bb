// Package httpapi holds the JSON conventions of the tenantd API: a single
// response envelope, strict request decoding and one error classifier that
// maps tenant, session and validation errors to status codes.
//
// Error returns a function with the tenant.ErrorHandler signature so the
// same classifier serves both the tenant middleware and the handlers.
package httpapi
