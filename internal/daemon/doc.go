// Package daemon runs the waveq background services: the HTTP API, the job
// queue workers, the status listener, and periodic housekeeping. A file lock
// keeps a host to a single instance.
package daemon
