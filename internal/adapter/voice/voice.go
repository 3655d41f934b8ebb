// Package voice is component C6: the outbound voice port. Concrete adapters
// live in subpackages (twiliolike today).
package voice

import "context"

// InstructionKind enumerates the ordered call-script primitives spec §6
// describes for an outbound panic call.
type InstructionKind string

const (
	Speak  InstructionKind = "speak"
	Gather InstructionKind = "gather"
	Hangup InstructionKind = "hangup"
)

// Instruction is one step of the call script. Gather carries the DTMF
// digits that count as acknowledgment.
type Instruction struct {
	Kind          InstructionKind
	Text          string
	GatherDigits  []string
	GatherTimeout int // seconds
}

type PlaceCallRequest struct {
	PhoneE164    string
	Instructions []Instruction
	// StatusCallbackURL is where the provider posts the terminal call result
	// (spec §4.9 voice webhook).
	StatusCallbackURL string
}

type PlaceCallResult struct {
	ProviderCallID string
}

// Port is the interface the cascade engine depends on for voice calls
// (outbox sends reach it through a Sender closure).
type Port interface {
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)
	Hangup(ctx context.Context, providerCallID string) error
}
