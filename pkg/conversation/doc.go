// Package conversation drives the per-user dialog that collects files and
// turns them into an archive.
//
// Each inbound chat event maps to one Controller method. The controller
// never returns a raw error to the transport: every failure is resolved
// into a Result carrying an ErrorKind and a reply for the user.
//
// State machine, stored on the session:
//
//	Start          any            -> idle (fresh session)
//	RequestNaming  any            -> awaiting_name
//	Text           awaiting_name  -> idle, name applied
//	Text           idle           -> ignored
//	Upload         any            -> unchanged
//	Assemble       any            -> session removed after the attempt
package conversation
