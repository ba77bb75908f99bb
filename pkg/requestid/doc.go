// Package requestid carries the correlation id of a unit of work.
//
// HTTP requests get one from Middleware. Events copy it into their metadata at
// emission so asynchronous handlers log under the same id as the request that
// caused them; non-HTTP entry points call Ensure.
package requestid
