// Package controller implements the Controller (component E): the event
// pump that ties the Binary Index, Function Analyzer, Trace Stack and
// Tracer together behind a small, display-agnostic collaborator contract.
//
// The event loop shape is grounded on the teacher's top-level main
// function: a small request enum pumped through a select loop, generalized
// here from GUI-creation/quit/interrupt requests to the controller's own
// quit/fatal/refresh signals.
package controller
