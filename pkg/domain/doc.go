// Package domain defines the value types shared by every layer of dagent:
// plans and tasks, per-task states, execution outcomes and reports, agent
// descriptors, run events and the error taxonomy.
//
// Types in this package carry no behaviour beyond small helpers; validation
// and scheduling live in internal/application/orchestrator.
package domain
