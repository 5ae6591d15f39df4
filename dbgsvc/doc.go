// Package dbgsvc exposes the debugger session as a request/reply
// service suitable for remote control transports.
//
// Every operation returns a reply carrying a Status: OK for success,
// NOK with an ErrorReason for failure, and Finish when a run advance
// completed module execution. Failures never panic across the service
// boundary; session errors are folded into the reply so a remote
// frontend can present them.
//
// The service reverses direction for import calls: when the module
// invokes an imported function the registered HostExecutor is asked to
// produce the result, mirroring how a remote frontend would service a
// callback request.
package dbgsvc
