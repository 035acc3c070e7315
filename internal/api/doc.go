// Package api exposes the job service over HTTP. Handlers resolve the job
// owner, stream uploads through the ingester, translate service errors to
// status codes and render jobs and results as JSON.
package api
