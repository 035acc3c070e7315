// Package retention deletes jobs that outlived the configured retention
// window. A Sweeper runs on a ticker inside the server process and can be
// invoked once from the command line.
package retention
