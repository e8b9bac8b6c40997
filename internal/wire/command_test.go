package wire

import "testing"

func flatten(tokens [][]byte) []byte {
	var out []byte
	for _, t := range tokens {
		out = append(out, t...)
	}
	return out
}

func TestTryParseUnknownVerb(t *testing.T) {
	tokens := [][]byte{[]byte("BOGUS")}
	res, needMore := TryParse(tokens)
	if needMore {
		t.Fatalf("unknown verb should not need more data")
	}
	if res.Err == nil {
		t.Fatalf("expected invalid-command error")
	}
}

func TestTryParseIncompleteWaitsForMore(t *testing.T) {
	// GET requires 1 positional arg + num_opt_args token; only the verb
	// is present so far.
	tokens := [][]byte{[]byte("GET")}
	_, needMore := TryParse(tokens)
	if !needMore {
		t.Fatalf("expected needMore with only the verb present")
	}
}

func TestTryParseSetRoundTrip(t *testing.T) {
	cmd := &Command{Verb: VerbSet, Args: []string{"k", "v"}, Opts: map[string]string{"NAME": "s1"}}
	encoded := cmd.Encode()

	d := NewDecoder()
	toks, err := d.Feed(flatten(encoded))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	res, needMore := TryParse(toks)
	if needMore {
		t.Fatalf("expected a complete parse")
	}
	if res.Err != nil {
		t.Fatalf("unexpected parse error: %v", res.Err)
	}
	if res.Cmd.Verb != VerbSet || res.Cmd.Args[0] != "k" || res.Cmd.Args[1] != "v" {
		t.Fatalf("got %+v", res.Cmd)
	}
	if res.Cmd.StashName() != "s1" {
		t.Fatalf("expected stash name s1, got %s", res.Cmd.StashName())
	}
	if !res.Cmd.IsWrite() {
		t.Fatalf("SET should be a write command")
	}
}

func TestTryParseDefaultStashName(t *testing.T) {
	cmd := &Command{Verb: VerbGet, Args: []string{"k"}, Opts: map[string]string{}}
	if cmd.StashName() != "default" {
		t.Fatalf("expected default stash name, got %s", cmd.StashName())
	}
}

func TestTryParseInvalidNumOptArgs(t *testing.T) {
	tokens := [][]byte{
		EncodeTokenString("GET"),
		EncodeTokenString("k"),
		EncodeTokenString("not-a-number"),
	}
	d := NewDecoder()
	toks, err := d.Feed(flatten(tokens))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	res, needMore := TryParse(toks)
	if needMore {
		t.Fatalf("should not need more data; num_opt_args token is malformed, not missing")
	}
	if res.Err == nil {
		t.Fatalf("expected a protocol error")
	}
}

func TestTryParseNumOptArgsExceedsCap(t *testing.T) {
	tokens := [][]byte{
		EncodeTokenString("GET"),
		EncodeTokenString("k"),
		EncodeTokenString("9999"),
	}
	d := NewDecoder()
	toks, _ := d.Feed(flatten(tokens))
	res, needMore := TryParse(toks)
	if needMore {
		t.Fatalf("should not need more data")
	}
	if res.Err == nil {
		t.Fatalf("expected a protocol error for exceeding the optional-arg cap")
	}
}
