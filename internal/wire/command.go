package wire

import (
	"strconv"
	"strings"

	"github.com/sstash/sstash/internal/sstasherr"
)

// Verb names, matching spec.md §4.1 exactly.
const (
	VerbGet       = "GET"
	VerbInfo      = "INFO"
	VerbSet       = "SET"
	VerbSetTTL    = "SETTTL"
	VerbDelete    = "DELETE"
	VerbUpdateTTL = "UPDATETTL"
	VerbCreate    = "CREATE"
	VerbDrop      = "DROP"
)

// maxOptArgs caps num_opt_args so a malicious/buggy client cannot force the
// dispatcher to buffer an unbounded optional-argument list.
const maxOptArgs = 8

// NameOptKey is the only optional argument this protocol defines.
const NameOptKey = "NAME"

type verbSpec struct {
	numRequired int
	write       bool
}

var verbTable = map[string]verbSpec{
	VerbGet:       {numRequired: 1, write: false},
	VerbInfo:      {numRequired: 0, write: false},
	VerbSet:       {numRequired: 2, write: true},
	VerbSetTTL:    {numRequired: 3, write: true},
	VerbDelete:    {numRequired: 1, write: true},
	VerbUpdateTTL: {numRequired: 2, write: true},
	VerbCreate:    {numRequired: 3, write: true},
	VerbDrop:      {numRequired: 1, write: true},
}

// Command is a fully parsed request: a verb, its required positional
// arguments in declared order, and any optional KEY=VALUE arguments.
type Command struct {
	Verb string
	Args []string
	Opts map[string]string
}

// IsWrite reports whether this verb mutates stash state.
func (c *Command) IsWrite() bool {
	return verbTable[c.Verb].write
}

// StashName returns the NAME optional argument, defaulting to "default".
func (c *Command) StashName() string {
	if v, ok := c.Opts[NameOptKey]; ok && v != "" {
		return v
	}
	return "default"
}

// Encode re-serializes a command to its wire form: verb, required args,
// num_opt_args, then each KEY VALUE pair — used by the leader to forward a
// mutating command to its followers.
func (c *Command) Encode() [][]byte {
	tokens := make([][]byte, 0, 2+len(c.Args)+2*len(c.Opts))
	tokens = append(tokens, EncodeTokenString(c.Verb))
	for _, a := range c.Args {
		tokens = append(tokens, EncodeTokenString(a))
	}
	tokens = append(tokens, EncodeTokenString(strconv.Itoa(len(c.Opts))))
	for k, v := range c.Opts {
		tokens = append(tokens, EncodeTokenString(k))
		tokens = append(tokens, EncodeTokenString(v))
	}
	return tokens
}

// ParseResult is the outcome of one TryParse attempt.
type ParseResult struct {
	// Cmd is non-nil on a successful parse.
	Cmd *Command
	// Err is non-nil when the tokens present form an invalid command
	// (as opposed to merely an incomplete one).
	Err *sstasherr.Error
	// Consumed is how many tokens from the front of the queue were
	// consumed by this attempt. Meaningful only when Cmd != nil or
	// Err != nil; callers must leave the queue untouched when TryParse
	// reports needMore.
	Consumed int
}

// TryParse attempts to parse exactly one command from the front of tokens.
// needMore is true when tokens does not yet contain a complete command; in
// that case the caller must not remove anything from its queue and should
// wait for more input — this is what makes framing resumable across
// partial reads (spec.md §4.1).
func TryParse(tokens [][]byte) (result ParseResult, needMore bool) {
	if len(tokens) < 1 {
		return ParseResult{}, true
	}

	verb := strings.ToUpper(string(tokens[0]))
	spec, known := verbTable[verb]
	if !known {
		return ParseResult{Err: sstasherr.InvalidCommand(verb), Consumed: 1}, false
	}

	// verb + required args + num_opt_args token
	need := 1 + spec.numRequired + 1
	if len(tokens) < need {
		return ParseResult{}, true
	}

	args := make([]string, spec.numRequired)
	for i := 0; i < spec.numRequired; i++ {
		args[i] = string(tokens[1+i])
	}

	numOptStr := string(tokens[1+spec.numRequired])
	numOpt, convErr := strconv.Atoi(numOptStr)
	if convErr != nil || numOpt < 0 {
		return ParseResult{
			Err:      sstasherr.Protocol("invalid num_opt_args: %q", numOptStr),
			Consumed: need,
		}, false
	}
	if numOpt > maxOptArgs {
		return ParseResult{
			Err:      sstasherr.Protocol("num_opt_args %d exceeds max %d", numOpt, maxOptArgs),
			Consumed: need,
		}, false
	}

	total := need + 2*numOpt
	if len(tokens) < total {
		return ParseResult{}, true
	}

	opts := make(map[string]string, numOpt)
	for i := 0; i < numOpt; i++ {
		k := string(tokens[need+2*i])
		v := string(tokens[need+2*i+1])
		if k == "" {
			return ParseResult{
				Err:      sstasherr.Protocol("malformed optional argument pair at index %d", i),
				Consumed: total,
			}, false
		}
		opts[k] = v
	}

	return ParseResult{
		Cmd:      &Command{Verb: verb, Args: args, Opts: opts},
		Consumed: total,
	}, false
}
