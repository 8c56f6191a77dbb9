/*
Package health provides generic health-check primitives: HTTP, TCP, and
Exec checkers behind a single Checker interface.

dc1agent's own probing (the Network Monitor's subprocess ping probe) is
built in pkg/netmon rather than on this package directly, but follows
the same exec.CommandContext-with-timeout idiom ExecChecker uses here.
This package is kept as a small, self-contained probe toolkit available
to any component that needs an HTTP/TCP/exec liveness check.
*/
package health
