// Package fixture manages shared resources that several workloads use at once,
// such as the echo server. Resources start lazily on first Acquire and stop
// when the last Handle is released.
package fixture
