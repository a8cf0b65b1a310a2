package lexer

import "testing"

func collectTypes(t *testing.T, src string) []TokenType {
	t.Helper()
	l := New(src)
	var types []TokenType
	for {
		tok := l.NextToken()
		types = append(types, tok.Type)
		if tok.Type == TokenEOF || tok.Type == TokenIllegal {
			break
		}
	}
	return types
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	toks, err := New("def class var self parent fooBar").Tokenize()
	if err != nil {
		t.Fatal(err)
	}
	want := []TokenType{TokenDef, TokenClass, TokenVar, TokenSelf, TokenParent, TokenIdentifier, TokenEOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(want), toks)
	}
	for i, tt := range want {
		if toks[i].Type != tt {
			t.Fatalf("token %d: got %s, want %s", i, toks[i].Type, tt)
		}
	}
}

func TestNumberLiterals(t *testing.T) {
	cases := []struct {
		src  string
		want TokenType
	}{
		{"42", TokenInt},
		{"3.14", TokenFloat},
		{"0x1F", TokenHexInt},
		{"0b101", TokenBinInt},
		{"0c17", TokenOctInt},
		{"1e10", TokenFloat},
	}
	for _, c := range cases {
		l := New(c.src)
		tok := l.NextToken()
		if tok.Type != c.want {
			t.Errorf("%q: got %s, want %s", c.src, tok.Type, c.want)
		}
	}
}

func TestRangeVsDotVsEllipsis(t *testing.T) {
	types := collectTypes(t, "a.b 1..2 f(...)")
	want := []TokenType{
		TokenIdentifier, TokenDot, TokenIdentifier,
		TokenInt, TokenRange, TokenInt,
		TokenIdentifier, TokenLParen, TokenEllipsis, TokenRParen,
		TokenEOF,
	}
	if len(types) != len(want) {
		t.Fatalf("got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("index %d: got %s, want %s", i, types[i], want[i])
		}
	}
}

func TestCompoundOperators(t *testing.T) {
	types := collectTypes(t, "a += 1; b <<= 2; c >>> 3; d ?? e")
	want := []TokenType{
		TokenIdentifier, TokenPlusEq, TokenInt, TokenSemicolon,
		TokenIdentifier, TokenShlEq, TokenInt, TokenSemicolon,
		TokenIdentifier, TokenUShr, TokenInt, TokenSemicolon,
		TokenIdentifier, TokenQuestionQuestion, TokenIdentifier,
		TokenEOF,
	}
	if len(types) != len(want) {
		t.Fatalf("got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("index %d: got %s, want %s", i, types[i], want[i])
		}
	}
}

func TestSimpleString(t *testing.T) {
	l := New(`'hello world'`)
	tok := l.NextToken()
	if tok.Type != TokenString || tok.Literal != "hello world" {
		t.Fatalf("got %+v", tok)
	}
}

func TestStringEscapes(t *testing.T) {
	l := New(`'a\nb\tc'`)
	tok := l.NextToken()
	if tok.Type != TokenString || tok.Literal != "a\nb\tc" {
		t.Fatalf("got %+v", tok)
	}
}

func TestInterpolatedString(t *testing.T) {
	// '${a}!' -> INTERP_START("") IDENTIFIER(a) INTERP_END("!")
	types := collectTypes(t, `'${a}!'`)
	want := []TokenType{TokenInterpStart, TokenIdentifier, TokenInterpEnd, TokenEOF}
	if len(types) != len(want) {
		t.Fatalf("got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("index %d: got %s, want %s", i, types[i], want[i])
		}
	}
}

func TestInterpolatedStringWithDictExpr(t *testing.T) {
	// interpolation body containing its own { } must not confuse the
	// brace-matching that tells a bare '}' apart from the one closing ${.
	types := collectTypes(t, `'${ {'a':1}['a'] }x'`)
	last := types[len(types)-2] // token right before EOF
	if last != TokenInterpEnd {
		t.Fatalf("expected trailing chunk to be INTERP_END, got %s (full: %v)", last, types)
	}
}

func TestRawAndByteStrings(t *testing.T) {
	l := New(`r'a\nb'`)
	tok := l.NextToken()
	if tok.Type != TokenRawString || tok.Literal != `a\nb` {
		t.Fatalf("raw string: got %+v", tok)
	}

	l2 := New(`b'hi'`)
	tok2 := l2.NextToken()
	if tok2.Type != TokenByteString || tok2.Literal != "hi" {
		t.Fatalf("byte string: got %+v", tok2)
	}
}
