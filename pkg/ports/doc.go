// Package ports declares the interfaces between the execution core and its
// collaborators: agent capabilities, plan producers, the event bus, report
// storage and metrics.
package ports
