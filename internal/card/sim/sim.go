// Package sim is an in-memory card that executes transaction batches
// against a card.Image.
package sim

import (
	"bytes"
	"fmt"

	"ticket-validation-api/internal/card"
	"ticket-validation-api/internal/records"
)

// Op names a card command.
type Op string

const (
	OpRead          Op = "read"
	OpWrite         Op = "write"
	OpDecrement     Op = "decrement"
	OpAuthenticate  Op = "authenticate"
	OpOpenSession   Op = "open_session"
	OpCloseSession  Op = "close_session"
	OpCancelSession Op = "cancel_session"
	OpCloseChannel  Op = "close_channel"
)

// Command is one executed card command.
type Command struct {
	Op      Op
	Range   card.Range
	Data    []byte
	Counter int
	Amount  int
	Block   int
	KeyType card.KeyType
	Key     int
	Level   card.SessionLevel
}

// Mutates reports whether the command changes card contents.
func (c Command) Mutates() bool {
	return c.Op == OpWrite || c.Op == OpDecrement
}

// Option configures a Card.
type Option func(*Card)

// WithKeys sets the key provider used for sector authentication.
func WithKeys(kp card.KeyProvider) Option {
	return func(c *Card) { c.keys = kp }
}

// WithTearOnClose makes the next session close commit the writes but
// fail before ratification, like a card pulled from the field.
func WithTearOnClose() Option {
	return func(c *Card) { c.tearOnClose = true }
}

// Card simulates one presented card. It is not safe for concurrent use;
// one tap drives it at a time.
type Card struct {
	image    *card.Image
	ratified bool
	keys     card.KeyProvider

	pending  []Command
	executed []Command
	read     map[card.Range][]byte

	session       *card.Image
	authenticated bool
	closed        bool
	tearOnClose   bool
	faults        map[Op]error
}

// New presents img to the reader. The card works on its own copy.
func New(img *card.Image, opts ...Option) *Card {
	c := &Card{
		image:    img.Clone(),
		ratified: img.Ratified,
		keys:     card.DefaultKeys{},
		read:     make(map[card.Range][]byte),
		faults:   make(map[Op]error),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FailOn makes the next execution of op fail with err.
func (c *Card) FailOn(op Op, err error) {
	c.faults[op] = err
}

// Image returns a copy of the committed card contents.
func (c *Card) Image() *card.Image {
	return c.image.Clone()
}

// Executed returns the commands run so far.
func (c *Card) Executed() []Command {
	return append([]Command(nil), c.executed...)
}

// Mutations returns the executed write and decrement commands.
func (c *Card) Mutations() []Command {
	var out []Command
	for _, cmd := range c.executed {
		if cmd.Mutates() {
			out = append(out, cmd)
		}
	}
	return out
}

// Count returns how many commands of op were executed.
func (c *Card) Count(op Op) int {
	n := 0
	for _, cmd := range c.executed {
		if cmd.Op == op {
			n++
		}
	}
	return n
}

// Closed reports whether the channel was closed.
func (c *Card) Closed() bool {
	return c.closed
}

// InSession reports whether a secure session is open.
func (c *Card) InSession() bool {
	return c.session != nil
}

// Info implements card.Snapshot.
func (c *Card) Info() card.Info {
	return c.image.Info()
}

// Ratified implements card.Snapshot.
func (c *Card) Ratified() bool {
	return c.ratified
}

// ReadData implements card.Snapshot.
func (c *Card) ReadData(r card.Range) ([]byte, error) {
	data, ok := c.read[r]
	if !ok {
		return nil, fmt.Errorf("%w: %s", card.ErrNotRead, r)
	}
	return bytes.Clone(data), nil
}

func (c *Card) PrepareReadRecords(r card.Range) {
	c.pending = append(c.pending, Command{Op: OpRead, Range: r})
}

func (c *Card) PrepareWriteRecords(r card.Range, data []byte) {
	c.pending = append(c.pending, Command{Op: OpWrite, Range: r, Data: bytes.Clone(data)})
}

func (c *Card) PrepareDecrementCounter(sfi byte, counter int, amount int) {
	c.pending = append(c.pending, Command{Op: OpDecrement, Range: card.Record(sfi, 1), Counter: counter, Amount: amount})
}

func (c *Card) PrepareAuthenticate(block int, keyType card.KeyType, keyNumber int) {
	c.pending = append(c.pending, Command{Op: OpAuthenticate, Block: block, KeyType: keyType, Key: keyNumber})
}

func (c *Card) PrepareOpenSecureSession(level card.SessionLevel) {
	c.pending = append(c.pending, Command{Op: OpOpenSession, Level: level})
}

func (c *Card) PrepareCloseSecureSession() {
	c.pending = append(c.pending, Command{Op: OpCloseSession})
}

func (c *Card) PrepareCancelSecureSession() {
	c.pending = append(c.pending, Command{Op: OpCancelSession})
}

// ProcessCommands implements card.Transaction. A failed command aborts
// the batch and any open secure session; storage writes already executed
// in the batch stay on the card.
func (c *Card) ProcessCommands(cc card.ChannelControl) error {
	batch := c.pending
	c.pending = nil
	if c.closed {
		return card.ErrChannelClosed
	}
	defer func() {
		c.authenticated = false
		if cc == card.CloseAfter {
			c.closed = true
			c.session = nil
		}
	}()
	for _, cmd := range batch {
		if err := c.execute(cmd); err != nil {
			c.session = nil
			return fmt.Errorf("%s: %w", cmd.Op, err)
		}
		c.executed = append(c.executed, cmd)
	}
	if cc == card.CloseAfter {
		if err, ok := c.faults[OpCloseChannel]; ok {
			delete(c.faults, OpCloseChannel)
			return fmt.Errorf("%s: %w", OpCloseChannel, err)
		}
		c.executed = append(c.executed, Command{Op: OpCloseChannel})
	}
	return nil
}

func (c *Card) execute(cmd Command) error {
	if err, ok := c.faults[cmd.Op]; ok {
		delete(c.faults, cmd.Op)
		return err
	}
	switch cmd.Op {
	case OpRead:
		if err := c.checkAccess(cmd.Range); err != nil {
			return err
		}
		data, err := c.working().ReadRange(cmd.Range)
		if err != nil {
			return err
		}
		c.read[cmd.Range] = data
	case OpWrite:
		if err := c.checkAccess(cmd.Range); err != nil {
			return err
		}
		if err := c.checkSession(); err != nil {
			return err
		}
		if err := c.working().WriteRange(cmd.Range, cmd.Data); err != nil {
			return err
		}
		c.read[cmd.Range] = bytes.Clone(cmd.Data)
	case OpDecrement:
		if err := c.checkSession(); err != nil {
			return err
		}
		return c.decrement(cmd)
	case OpAuthenticate:
		return c.authenticate(cmd)
	case OpOpenSession:
		if c.image.Product.Family() != card.FamilyCalypso {
			return fmt.Errorf("%w: no secure session on %s", card.ErrRejected, c.image.Product.DisplayName())
		}
		if c.session != nil {
			return fmt.Errorf("%w: session already open", card.ErrSession)
		}
		c.session = c.image.Clone()
	case OpCloseSession:
		if c.session == nil {
			return fmt.Errorf("%w: no session open", card.ErrSession)
		}
		c.image = c.session
		c.session = nil
		if c.tearOnClose {
			c.tearOnClose = false
			c.image.Ratified = false
			return fmt.Errorf("%w: card removed before ratification", card.ErrCommunication)
		}
		c.image.Ratified = true
	case OpCancelSession:
		if c.session == nil {
			return fmt.Errorf("%w: no session open", card.ErrSession)
		}
		c.session = nil
	}
	return nil
}

func (c *Card) working() *card.Image {
	if c.session != nil {
		return c.session
	}
	return c.image
}

func (c *Card) checkSession() error {
	if c.image.Product.Family() == card.FamilyCalypso && c.session == nil {
		return fmt.Errorf("%w: modification outside a secure session", card.ErrSession)
	}
	return nil
}

func (c *Card) checkAccess(r card.Range) error {
	if !c.image.Product.IsMifareClassic() {
		return nil
	}
	if !c.authenticated {
		return fmt.Errorf("%w: sector not authenticated for %s", card.ErrAuthentication, r)
	}
	return nil
}

func (c *Card) authenticate(cmd Command) error {
	if !c.image.Product.IsMifareClassic() {
		return fmt.Errorf("%w: %s has no sector keys", card.ErrRejected, c.image.Product.DisplayName())
	}
	key, err := c.keys.Key(cmd.KeyType, cmd.Key)
	if err != nil {
		return fmt.Errorf("%w: %v", card.ErrAuthentication, err)
	}
	if !bytes.Equal(key, c.image.SectorKey) {
		return fmt.Errorf("%w: wrong %s for block %d", card.ErrAuthentication, cmd.KeyType, cmd.Block)
	}
	c.authenticated = true
	return nil
}

func (c *Card) decrement(cmd Command) error {
	img := c.working()
	raw, err := img.ReadRange(cmd.Range)
	if err != nil {
		return err
	}
	counters, err := records.ParseCounterFile(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", card.ErrRejected, err)
	}
	if cmd.Counter < 1 || cmd.Counter > len(counters) {
		return fmt.Errorf("%w: no counter #%d", card.ErrRejected, cmd.Counter)
	}
	if cmd.Amount < 0 || counters[cmd.Counter-1] < cmd.Amount {
		return fmt.Errorf("%w: counter #%d cannot be decremented by %d", card.ErrRejected, cmd.Counter, cmd.Amount)
	}
	counters[cmd.Counter-1] -= cmd.Amount
	return img.WriteRange(cmd.Range, records.GenerateCounterFile(counters))
}
