package kv

import "time"

// Operation is a single request to the engine: apply Command to the full
// key identified by (Namespace, Key).
type Operation struct {
	Namespace string
	Key       string
	Command   Command
}

// Command is implemented by SetCommand, GetCommand, DeleteCommand,
// IncrementCommand, and DecrementCommand. It is sealed the same way Value
// is: an unexported marker method closes the set of legal implementations.
type Command interface {
	isCommand()
}

// CheckKind constrains when a Set is allowed to take effect.
type CheckKind int

const (
	// CheckNone applies the Set unconditionally.
	CheckNone CheckKind = iota
	// CheckExists requires a current (non-expired) value to be present.
	CheckExists
	// CheckNotExists requires no current value to be present.
	CheckNotExists
)

// SetCommand stores Value at the target key, subject to Check.
type SetCommand struct {
	Value Value

	// Expiration sets an absolute expiration time for the new entry; nil
	// means the entry never expires. Ignored when KeepExistingExpiration
	// is true.
	Expiration *time.Time

	// KeepExistingExpiration carries the prior entry's expiration forward
	// instead of applying Expiration. If no prior entry exists, the new
	// entry gets no expiration.
	KeepExistingExpiration bool

	// Check gates whether the write applies at all.
	Check CheckKind

	// ReturnPrevious requests that Output report the value that occupied
	// the key before this command ran (nil if it was absent), regardless
	// of whether Check allowed the write to proceed.
	ReturnPrevious bool
}

func (SetCommand) isCommand() {}

// GetCommand reads the current value of the target key. If Delete is set,
// the key is also removed as part of the same operation.
type GetCommand struct {
	Delete bool
}

func (GetCommand) isCommand() {}

// DeleteCommand removes the target key if present.
type DeleteCommand struct {
	// ReturnPrevious requests that Output report the value that was
	// removed (nil if the key was already absent).
	ReturnPrevious bool
}

func (DeleteCommand) isCommand() {}

// IncrementCommand adds Amount to the target's current numeric value
// (treating an absent key as zero of the Amount's own variant), using
// either saturating or wrapping arithmetic.
type IncrementCommand struct {
	Amount     Value
	Saturating bool
}

func (IncrementCommand) isCommand() {}

// DecrementCommand subtracts Amount from the target's current numeric
// value. See IncrementCommand.
type DecrementCommand struct {
	Amount     Value
	Saturating bool
}

func (DecrementCommand) isCommand() {}

// OutputKind discriminates the shape of an Output.
type OutputKind int

const (
	// OutputValue carries whatever the command returns as its primary
	// result: the current value for Get/Increment/Decrement, or the
	// requested previous value for a Set/Delete with ReturnPrevious set.
	// Value is nil when the key was (or was found) absent.
	OutputValue OutputKind = iota
	// OutputInserted reports that a Set created a new entry; Value holds
	// the newly stored value.
	OutputInserted
	// OutputUpdated reports that a Set replaced an existing entry; Value
	// holds the newly stored value.
	OutputUpdated
	// OutputDeleted reports that a Delete removed an existing entry;
	// Value holds the removed value.
	OutputDeleted
	// OutputNotChanged reports that a Set's Check prevented the write, or
	// that a Delete found no entry to remove.
	OutputNotChanged
)

// Output is the result of executing a Command.
type Output struct {
	Kind  OutputKind
	Value Value
}

func valueOf(e *Entry) Value {
	if e == nil {
		return nil
	}
	return e.Value
}
