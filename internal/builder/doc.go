/*
Package builder applies the statements of a flow, in order, to a runtime
environment and extracts the resulting job graph.

The Accumulator is a small state machine:

	Init → (Binding → Bound)* → Finalizing → Done
	                 ↘ any error → Failed

 1. Binding: a CREATE ... TABLE statement resolves its connector type
    against the plugin registry for the role its kind implies, decodes the
    WITH options into the connector's options struct using the types and
    defaults of the plugin manifest, instantiates the connector and
    registers the table in the environment. INSERT and CREATE VIEW
    statements register queries reading from tables bound earlier.

 2. Finalizing: the environment turns the registered queries into a job
    graph, which is named after the job.

Compilation is strict and all-or-nothing: the first failing statement moves
the accumulator to Failed and every later call returns ErrFailed. Errors are
always wrapped in a *StatementError naming the statement that caused them.
*/
package builder
