// Package service contains the application use cases of the job API.
//
// JobService validates submissions, creates job records, builds the task for
// each job and hands it to the runner. It also serves job lookups and the
// type-specific job results. FailedJobPurger removes FAILED jobs once their
// owner has seen them listed.
//
// The service layer depends on domain entities and the store interfaces,
// never on a specific storage or transport implementation.
package service
