// Package agents provides the catalog of agent kinds that agent
// declarations can refer to, and the built-in echo agent.
package agents
