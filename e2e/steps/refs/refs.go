// Package refs names the ids steps remember across a scenario.
package refs

func Event(name string) string { return "event:" + name }

func Organization(event string) string { return "organization:" + event }

func Distance(label string) string { return "distance:" + label }

// EventOf is the event a distance label belongs to.
func EventOf(label string) string { return "event-of:" + label }

func Registration(email string) string { return "registration:" + email }

// Batch is the most recent group batch of the scenario.
const Batch = "batch"
