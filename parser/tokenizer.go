package parser

import (
	"regexp"
	"strings"

	hdrerrors "github.com/ardanlabs/hdrgen/errors"
)

var templateRe = regexp.MustCompile(`^template\s*<`)
var accessRe = regexp.MustCompile(`^(public|private|protected)\s*:\s*$`)
var defineRe = regexp.MustCompile(`^#\s*define\s+([A-Za-z_]\w*)(\([^)]*\))?\s*(.*)$`)
var directiveRe = regexp.MustCompile(`^#\s*(\w*)\s*(.*)$`)
var callbackRe = regexp.MustCompile(`^(.*?)\(\s*(?:[A-Za-z_]\w*\s+)*\*\s*([A-Za-z_]\w*)\s*\)\s*\((.*)\)\s*$`)
var usingAliasRe = regexp.MustCompile(`^using\s+([A-Za-z_]\w*)\s*=\s*(.+)$`)
var nameTailRe = regexp.MustCompile(`([~A-Za-z_][\w:~]*)\s*((?:\[[^\]]*\]\s*)*)$`)
var tagKeywordRe = regexp.MustCompile(`^(struct|union|class|enum(?:\s+class|\s+struct)?)\b\s*(.*)$`)

// specifiers never carried into a declared type.
var specifiers = map[string]bool{
	"extern":    true,
	"inline":    true,
	"static":    true,
	"constexpr": true,
	"virtual":   true,
	"explicit":  true,
	"friend":    true,
	"__inline":  true,
}

type TokenizeOptions struct {
	// IgnoreWords are decoration macros dropped from declarations
	// (calling conventions, export markers).
	IgnoreWords []string

	// Enum switches to enumerator mode: comma-separated statements.
	Enum bool

	// Nested marks a struct/class body, where constructors are legal.
	Nested bool

	// LineOffset is added to every reported line number.
	LineOffset int
}

type tokenizer struct {
	lines      []string
	pos        int
	opts       TokenizeOptions
	ignore     map[string]bool
	tokens     []Token
	blankStart int

	// rest holds the code after the closing brace of the last block.
	rest string

	// carry is the unread remainder of line carryLine after a construct
	// that ended mid-line.
	carry     string
	carryLine int
	carrying  bool
}

// Tokenize converts the lines of one file into a token stream terminated by
// a KindEnd token. Every line belongs to exactly one token.
func Tokenize(lines []string, opts TokenizeOptions) ([]Token, error) {
	t := &tokenizer{
		lines:      lines,
		opts:       opts,
		ignore:     make(map[string]bool),
		blankStart: -1,
	}
	for _, w := range opts.IgnoreWords {
		t.ignore[w] = true
	}

	for t.pos < len(t.lines) {
		raw := t.current()
		t.carrying = false

		if strings.TrimSpace(raw) == "" {
			if t.blankStart < 0 {
				t.blankStart = t.pos
			}
			t.pos++
			continue
		}

		start := t.pos
		tok, err := t.next(raw)
		if err != nil {
			return nil, err
		}
		switch {
		case t.pos < start:
			t.pos = start + 1
		case t.pos == start && (!t.carrying || len(t.carry) >= len(raw)):
			t.carrying = false
			t.pos = start + 1
		}
		t.emit(tok, start)
	}

	if t.blankStart >= 0 {
		if n := len(t.tokens); n > 0 {
			t.tokens[n-1].End = t.line(len(t.lines))
		} else {
			t.tokens = append(t.tokens, Token{
				Kind:  KindOther,
				Begin: t.line(t.blankStart),
				Decl:  t.line(t.blankStart),
				End:   t.line(len(t.lines)),
			})
		}
	}

	end := t.line(len(t.lines))
	t.tokens = append(t.tokens, Token{Kind: KindEnd, Begin: end, Decl: end, End: end})

	return t.tokens, nil
}

func (t *tokenizer) line(idx int) int {
	return idx + 1 + t.opts.LineOffset
}

// current returns the unread text of the line at pos.
func (t *tokenizer) current() string {
	if t.carrying && t.carryLine == t.pos {
		return t.carry
	}
	return t.lines[t.pos]
}

// advance ends a construct on the line at pos. Code left on the line after
// it is tokenized next.
func (t *tokenizer) advance(rest string) {
	if strings.Trim(rest, " \t;") != "" {
		t.carry = strings.TrimSpace(rest)
		t.carryLine = t.pos
		t.carrying = true
		return
	}
	t.pos++
}

// firstLine returns raw while pos is still on the line a construct started
// on, and the full line after that.
func (t *tokenizer) firstLine(start int, raw string) string {
	if t.pos == start {
		return raw
	}
	return t.lines[t.pos]
}

func (t *tokenizer) emit(tok Token, start int) {
	begin := start
	if t.blankStart >= 0 {
		begin = t.blankStart
		t.blankStart = -1
	}

	raw := t.lines[start]
	tok.Spaces = len(raw) - len(strings.TrimLeft(raw, " \t"))
	tok.Begin = t.line(begin)
	tok.Decl = t.line(start)
	tok.End = t.line(t.pos)

	t.tokens = append(t.tokens, tok)
}

func (t *tokenizer) malformed(msg string, idx int) error {
	if idx >= len(t.lines) {
		idx = len(t.lines) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return hdrerrors.New(hdrerrors.MalformedSource, msg, nil).WithLine(t.line(idx))
}

func (t *tokenizer) next(raw string) (Token, error) {
	trimmed := strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(trimmed, "/**") && !strings.HasPrefix(trimmed, "/**/"):
		return t.docBlock(raw)
	case strings.HasPrefix(trimmed, "///") || strings.HasPrefix(trimmed, "//!"):
		return t.docLines(raw), nil
	case strings.HasPrefix(trimmed, "/*"):
		return t.blockComment(raw)
	case strings.HasPrefix(trimmed, "//"):
		return t.lineComments(raw), nil
	case strings.HasPrefix(trimmed, "#"):
		return t.directive(raw), nil
	case accessRe.MatchString(trimmed):
		t.pos++
		return Token{Kind: KindOther, Value: strings.TrimSuffix(trimmed, ":")}, nil
	case templateRe.MatchString(trimmed):
		return t.template(raw)
	case t.opts.Enum:
		return t.enumerator(raw)
	}

	return t.statement(raw, nil)
}

func (t *tokenizer) docBlock(raw string) (Token, error) {
	start := t.pos
	var body []string

	for ; t.pos < len(t.lines); t.pos++ {
		text := strings.TrimSpace(t.firstLine(start, raw))
		if t.pos == start {
			text = strings.TrimPrefix(text, "/**")
			text = strings.TrimLeft(strings.TrimPrefix(text, "<"), " \t")
		} else {
			text = stripDocMarker(text)
		}

		if i := strings.Index(text, "*/"); i != -1 {
			body = append(body, strings.TrimRight(text[:i], " \t*"))
			t.advance(text[i+2:])
			return Token{Kind: KindDoc, Value: joinDoc(body)}, nil
		}
		body = append(body, strings.TrimRight(text, " \t"))
	}

	return Token{}, t.malformed("unterminated doc comment", len(t.lines)-1)
}

func stripDocMarker(text string) string {
	if strings.HasPrefix(text, "*") && !strings.HasPrefix(text, "*/") {
		text = text[1:]
		text = strings.TrimPrefix(text, " ")
	}
	return text
}

func joinDoc(body []string) string {
	for len(body) > 0 && strings.TrimSpace(body[0]) == "" {
		body = body[1:]
	}
	for len(body) > 0 && strings.TrimSpace(body[len(body)-1]) == "" {
		body = body[:len(body)-1]
	}
	for i, l := range body {
		if strings.TrimSpace(l) == "" {
			body[i] = ""
		}
	}
	return strings.Join(body, "\n")
}

func (t *tokenizer) docLines(raw string) Token {
	start := t.pos
	var body []string
	for ; t.pos < len(t.lines); t.pos++ {
		text := strings.TrimSpace(t.firstLine(start, raw))
		if !strings.HasPrefix(text, "///") && !strings.HasPrefix(text, "//!") {
			break
		}
		text = strings.TrimPrefix(text[3:], "<")
		body = append(body, strings.TrimRight(strings.TrimPrefix(text, " "), " \t"))
	}
	return Token{Kind: KindDoc, Value: joinDoc(body)}
}

func (t *tokenizer) blockComment(raw string) (Token, error) {
	start := t.pos
	for ; t.pos < len(t.lines); t.pos++ {
		text := t.firstLine(start, raw)
		if t.pos == start {
			text = strings.TrimSpace(text)[2:]
		}
		if i := strings.Index(text, "*/"); i != -1 {
			t.advance(text[i+2:])
			return Token{Kind: KindOther, Value: "comment"}, nil
		}
	}
	return Token{}, t.malformed("unterminated comment", len(t.lines)-1)
}

// lineComments folds a run of // lines. The run documents the next line when
// that line starts a declaration; otherwise it is a plain comment.
func (t *tokenizer) lineComments(raw string) Token {
	start := t.pos
	var body []string
	for ; t.pos < len(t.lines); t.pos++ {
		text := strings.TrimSpace(t.firstLine(start, raw))
		if !strings.HasPrefix(text, "//") {
			break
		}
		body = append(body, strings.TrimRight(strings.TrimPrefix(text[2:], " "), " \t"))
	}

	if t.pos < len(t.lines) && startsDeclaration(t.lines[t.pos]) {
		return Token{Kind: KindDoc, Value: joinDoc(body)}
	}
	return Token{Kind: KindOther, Value: "comment"}
}

func startsDeclaration(line string) bool {
	s := strings.TrimSpace(line)
	if s == "" {
		return false
	}
	for _, p := range []string{"#", "/", "}", "{"} {
		if strings.HasPrefix(s, p) {
			return false
		}
	}
	return !accessRe.MatchString(s)
}

func (t *tokenizer) directive(raw string) Token {
	start := t.pos
	var text strings.Builder
	for t.pos < len(t.lines) {
		l := strings.TrimSpace(t.firstLine(start, raw))
		t.pos++
		if strings.HasSuffix(l, "\\") {
			text.WriteString(strings.TrimSpace(strings.TrimSuffix(l, "\\")))
			text.WriteByte(' ')
			continue
		}
		text.WriteString(l)
		break
	}

	var inComment bool
	code, _ := stripLine(text.String(), &inComment)
	code = strings.TrimSpace(code)

	if m := defineRe.FindStringSubmatch(code); m != nil {
		if t.isIncludeGuard(m[1], m[3]) {
			return Token{Kind: KindOther, Value: "#define", Init: m[1]}
		}
		tok := Token{Kind: KindDef, Value: m[1], Init: strings.TrimSpace(m[3])}
		if m[2] != "" {
			tok.Parameters = splitTopLevel(m[2][1:len(m[2])-1], ',')
			if tok.Parameters == nil {
				tok.Parameters = []string{}
			}
		}
		return tok
	}

	m := directiveRe.FindStringSubmatch(code)
	if m == nil {
		return Token{Kind: KindOther, Value: "#"}
	}
	return Token{Kind: KindOther, Value: "#" + m[1], Init: strings.TrimSpace(m[2])}
}

func (t *tokenizer) isIncludeGuard(name, body string) bool {
	if strings.TrimSpace(body) != "" || len(t.tokens) == 0 {
		return false
	}
	prev := t.tokens[len(t.tokens)-1]
	return prev.Kind == KindOther && prev.Value == "#ifndef" && prev.Init == name
}

func (t *tokenizer) template(raw string) (Token, error) {
	trimmed := strings.TrimSpace(raw)
	open := strings.IndexByte(trimmed, '<')

	depth := 0
	for i := open; i < len(trimmed); i++ {
		switch trimmed[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth == 0 {
				params := splitTopLevel(trimmed[open+1:i], ',')
				rest := strings.TrimSpace(trimmed[i+1:])
				if rest == "" {
					t.pos++
					return Token{Kind: KindTemplate, Parameters: params}, nil
				}
				if params == nil {
					params = []string{}
				}
				return t.statement(rest, params)
			}
		}
	}

	return t.statement(raw, nil)
}

// boundary reports lines that end an unterminated statement.
func boundary(line string) bool {
	s := strings.TrimSpace(line)
	return s == "" || strings.HasPrefix(s, "#") || strings.HasPrefix(s, "/*") || strings.HasPrefix(s, "//")
}

func (t *tokenizer) statement(first string, tmpl []string) (Token, error) {
	start := t.pos
	var header strings.Builder
	var doc string
	var inComment bool
	depth := 0

	for t.pos < len(t.lines) {
		raw := t.lines[t.pos]
		if t.pos == start {
			raw = first
		} else if depth == 0 && boundary(raw) {
			break
		}

		code, d := stripLine(raw, &inComment)
		doc = appendDoc(doc, d)

		for i := 0; i < len(code); i++ {
			c := code[i]
			switch c {
			case '"', '\'':
				j := skipQuoted(code, i)
				header.WriteString(code[i:j])
				i = j - 1
				continue
			case '(', '[':
				depth++
			case ')', ']':
				depth--
			case '}':
				if depth == 0 && strings.TrimSpace(header.String()) == "" {
					t.advance(code[i+1:])
					return Token{Kind: KindOther, Value: "}"}, nil
				}
			case ';', '{':
				if depth == 0 {
					tok, err := t.finish(strings.TrimSpace(header.String()), c, i, code)
					if err != nil {
						return Token{}, err
					}
					tok.Doc = appendDoc(tok.Doc, doc)
					if tmpl != nil {
						tok.Template = tmpl
					}
					return tok, nil
				}
			}
			header.WriteByte(c)
		}

		header.WriteByte(' ')
		t.pos++
	}

	if depth > 0 {
		return Token{}, t.malformed("unterminated parameter list", t.pos-1)
	}

	fields := strings.Fields(header.String())
	tok := Token{Kind: KindOther}
	if len(fields) > 0 {
		tok.Value = fields[0]
	}
	return tok, nil
}

// finish classifies a statement whose terminator c sits at column col of the
// current line's code.
func (t *tokenizer) finish(header string, c byte, col int, code string) (Token, error) {
	if c == ';' {
		t.advance(code[col+1:])
		return t.declaration(header), nil
	}

	if strings.HasPrefix(header, "namespace") || strings.HasPrefix(header, "extern \"C") {
		t.advance(code[col+1:])
		return Token{Kind: KindOther, Value: strings.Fields(header)[0]}, nil
	}

	if tok, ok := t.tagged(header); ok {
		body, bodyLine, err := t.block(col, code)
		if err != nil {
			return Token{}, err
		}
		trailer, err := t.trailer()
		if err != nil {
			return Token{}, err
		}
		if name := lastIdent(trailer); name != "" && (tok.Value == "" || strings.HasPrefix(header, "typedef")) {
			tok.Value = name
		}
		tok.Body = body
		tok.BodyLine = bodyLine
		return tok, nil
	}

	if isFunctionHeader(header) {
		if _, _, err := t.block(col, code); err != nil {
			return Token{}, err
		}
		t.advance(t.rest)
		return t.function(header), nil
	}

	// braced initializer
	if _, _, err := t.block(col, code); err != nil {
		return Token{}, err
	}
	if _, err := t.trailer(); err != nil {
		return Token{}, err
	}
	tok := t.variable(header)
	tok.Init = "{...}"
	return tok, nil
}

// tagged recognizes struct/union/class/enum heads, with or without typedef.
func (t *tokenizer) tagged(header string) (Token, bool) {
	h := strings.TrimSpace(strings.TrimPrefix(header, "typedef "))
	m := tagKeywordRe.FindStringSubmatch(h)
	if m == nil || strings.Contains(m[2], "(") {
		return Token{}, false
	}

	keyword := strings.Fields(m[1])[0]
	rest := m[2]
	base := ""
	if i := topLevelColon(rest); i != -1 {
		base = strings.TrimSpace(rest[i+1:])
		rest = rest[:i]
	}

	tok := Token{Value: lastIdent(t.clean(rest)), Type: base}
	switch keyword {
	case "union":
		tok.Kind = KindUnion
	case "enum":
		tok.Kind = KindEnum
	default:
		tok.Kind = KindStruct
	}
	return tok, true
}

// block skips a brace-delimited body opening at column col of the current
// line and leaves t.pos on the closing line. It returns the inner lines and
// the line number of the first one.
func (t *tokenizer) block(col int, code string) ([]string, int, error) {
	var body []string
	bodyLine := 0
	depth := 0
	inComment := false
	first := t.pos

	for t.pos < len(t.lines) {
		text := code
		from := col
		if t.pos != first {
			text, _ = stripLine(t.lines[t.pos], &inComment)
			from = 0
		}

		for i := from; i < len(text); i++ {
			switch text[i] {
			case '"', '\'':
				i = skipQuoted(text, i) - 1
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					var inner string
					if t.pos == first {
						inner = text[col+1 : i]
					} else {
						inner = text[:i]
					}
					if strings.TrimSpace(inner) != "" {
						if bodyLine == 0 {
							bodyLine = t.line(t.pos)
						}
						body = append(body, inner)
					}
					t.rest = text[i+1:]
					return body, bodyLine, nil
				}
			}
		}

		switch {
		case t.pos == first:
			if inner := text[col+1:]; strings.TrimSpace(inner) != "" {
				bodyLine = t.line(t.pos)
				body = append(body, inner)
			}
		default:
			if bodyLine == 0 {
				bodyLine = t.line(t.pos)
			}
			body = append(body, t.lines[t.pos])
		}
		t.pos++
	}

	return nil, 0, t.malformed("unterminated body", len(t.lines)-1)
}

// trailer reads from the text after a closing brace up to the terminating
// semicolon and leaves t.pos after it.
func (t *tokenizer) trailer() (string, error) {
	var b strings.Builder
	text := t.rest
	inComment := false
	for {
		if i := strings.IndexByte(text, ';'); i != -1 {
			b.WriteString(text[:i])
			t.advance(text[i+1:])
			return strings.TrimSpace(b.String()), nil
		}
		b.WriteString(text)
		b.WriteByte(' ')
		t.pos++
		if t.pos >= len(t.lines) {
			return "", t.malformed("missing ';' after body", len(t.lines)-1)
		}
		text, _ = stripLine(t.lines[t.pos], &inComment)
	}
}

func (t *tokenizer) declaration(header string) Token {
	switch {
	case header == "":
		return Token{Kind: KindOther, Value: ";"}
	case strings.HasPrefix(header, "typedef "):
		return t.typedef(strings.TrimSpace(header[len("typedef "):]))
	case strings.HasPrefix(header, "using "):
		if m := usingAliasRe.FindStringSubmatch(header); m != nil {
			return Token{Kind: KindAlias, Value: m[1], Type: NormalizeType(t.clean(m[2]))}
		}
		return Token{Kind: KindOther, Value: "using"}
	case strings.HasPrefix(header, "static_assert") || strings.HasPrefix(header, "friend "):
		return Token{Kind: KindOther, Value: strings.Fields(header)[0]}
	}

	if m := tagKeywordRe.FindStringSubmatch(header); m != nil && !strings.ContainsAny(m[2], "(=") {
		rest := m[2]
		if i := topLevelColon(rest); i != -1 {
			rest = rest[:i]
		}
		if fields := strings.Fields(t.clean(rest)); len(fields) == 1 {
			return Token{Kind: KindForward, Value: fields[0], Type: strings.Fields(m[1])[0]}
		}
	}

	if isFunctionHeader(header) {
		return t.function(header)
	}
	return t.variable(header)
}

func (t *tokenizer) typedef(body string) Token {
	if m := callbackRe.FindStringSubmatch(body); m != nil {
		return Token{
			Kind:       KindCallback,
			Value:      m[2],
			Type:       NormalizeType(t.clean(m[1])),
			Parameters: splitTopLevel(m[3], ','),
		}
	}

	body = t.clean(body)
	m := nameTailRe.FindStringSubmatchIndex(body)
	if m == nil {
		return Token{Kind: KindOther, Value: "typedef"}
	}
	name := body[m[2]:m[3]]
	typ := strings.TrimSpace(body[:m[2]]) + strings.ReplaceAll(body[m[4]:m[5]], " ", "")

	if tm := tagKeywordRe.FindStringSubmatch(typ); tm != nil {
		if fields := strings.Fields(tm[2]); len(fields) == 1 && fields[0] == name {
			return Token{Kind: KindForward, Value: name, Type: strings.Fields(tm[1])[0]}
		}
	}

	return Token{Kind: KindAlias, Value: name, Type: NormalizeType(typ)}
}

func isFunctionHeader(header string) bool {
	depth := 0
	for i := 0; i < len(header); i++ {
		switch header[i] {
		case '"', '\'':
			i = skipQuoted(header, i) - 1
		case '<':
			depth++
		case '>':
			depth--
		case '=':
			if depth <= 0 && !strings.Contains(header[:i], "operator") {
				return false
			}
		case '(':
			return true
		}
	}
	return false
}

func (t *tokenizer) function(header string) Token {
	tok := Token{Kind: KindFunction}

	var pre string
	paren := -1

	if op := operatorIndex(header); op != -1 {
		pre = header[:op]
		after := strings.TrimSpace(header[op+len("operator"):])
		rel := len(header) - len(after)
		switch {
		case strings.HasPrefix(after, "()"):
			tok.Value = "operator()"
			paren = rel + strings.Index(after[2:], "(") + 2
		default:
			i := strings.IndexByte(after, '(')
			if i == -1 {
				return Token{Kind: KindOther, Value: "operator"}
			}
			sym := strings.TrimSpace(after[:i])
			if sym != "" && isIdentStart(sym[0]) {
				tok.Value = "operator " + NormalizeType(sym)
				if pre = strings.TrimSpace(pre); pre == "" {
					pre = NormalizeType(sym)
				}
			} else {
				tok.Value = "operator" + sym
			}
			paren = rel + i
		}
		tok.Type = NormalizeType(t.clean(pre))
	} else {
		paren = strings.IndexByte(header, '(')
		pre = t.clean(header[:paren])
		m := nameTailRe.FindStringSubmatchIndex(pre)
		if m == nil {
			return Token{Kind: KindOther, Value: strings.TrimSpace(pre)}
		}
		tok.Value = pre[m[2]:m[3]]
		tok.Type = NormalizeType(pre[:m[2]])
	}

	if paren < 0 || paren >= len(header) {
		return Token{Kind: KindOther, Value: tok.Value}
	}

	closing := matchParen(header, paren)
	if closing == -1 {
		return Token{Kind: KindOther, Value: tok.Value}
	}
	tok.Parameters = splitTopLevel(header[paren+1:closing], ',')

	suffix := strings.TrimSpace(header[closing+1:])
	if i := strings.Index(suffix, "->"); i != -1 {
		tok.Type = NormalizeType(t.clean(suffix[i+2:]))
		suffix = suffix[:i]
	}
	if i := topLevelColon(suffix); i != -1 {
		suffix = suffix[:i]
	}
	if i := strings.IndexByte(suffix, '='); i != -1 {
		tok.Init = strings.TrimSpace(suffix[i+1:])
		suffix = suffix[:i]
	}
	for _, w := range strings.Fields(suffix) {
		if w == "const" {
			tok.Immutable = true
		}
	}

	if tok.Type == "" && !t.opts.Nested && !strings.Contains(tok.Value, "::") {
		return Token{Kind: KindOther, Value: tok.Value}
	}

	return tok
}

func (t *tokenizer) variable(header string) Token {
	decl := header
	init := ""
	if i := topLevelIndex(header, '='); i != -1 {
		decl = header[:i]
		init = strings.TrimSpace(header[i+1:])
	} else if i := strings.IndexByte(header, '{'); i != -1 {
		decl = header[:i]
	}
	if i := topLevelColon(decl); i != -1 {
		decl = decl[:i]
	}

	decl = t.clean(decl)
	m := nameTailRe.FindStringSubmatchIndex(decl)
	if m == nil || strings.TrimSpace(decl[:m[2]]) == "" {
		fields := strings.Fields(header)
		tok := Token{Kind: KindOther}
		if len(fields) > 0 {
			tok.Value = fields[0]
		}
		return tok
	}

	typ := strings.TrimSpace(decl[:m[2]]) + strings.ReplaceAll(decl[m[4]:m[5]], " ", "")
	return Token{
		Kind:  KindVariable,
		Value: decl[m[2]:m[3]],
		Type:  NormalizeType(typ),
		Init:  init,
	}
}

func (t *tokenizer) enumerator(first string) (Token, error) {
	var text strings.Builder
	var doc string
	var inComment bool
	start := t.pos

	for t.pos < len(t.lines) {
		raw := t.firstLine(start, first)
		if t.pos != start && boundary(raw) {
			break
		}
		code, d := stripLine(raw, &inComment)
		doc = appendDoc(doc, d)
		text.WriteString(code)
		text.WriteByte(' ')
		t.pos++
		if strings.HasSuffix(strings.TrimSpace(code), ",") {
			break
		}
	}

	frags := split(text.String(), ',', false)
	if len(frags) == 0 {
		return Token{Kind: KindOther}, nil
	}

	name, value := splitEnumerator(frags[0])
	return Token{
		Kind:       KindVariable,
		Value:      name,
		Init:       value,
		Parameters: frags,
		Doc:        doc,
	}, nil
}

func splitEnumerator(frag string) (string, string) {
	if i := strings.IndexByte(frag, '='); i != -1 {
		return strings.TrimSpace(frag[:i]), strings.TrimSpace(frag[i+1:])
	}
	return strings.TrimSpace(frag), ""
}

// clean drops specifiers and ignored decoration words.
func (t *tokenizer) clean(s string) string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		if specifiers[f] || t.ignore[f] {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

// stripLine removes comments from one line of code. inComment carries an
// open block comment across lines. A trailing /**< */ or ///< doc is
// returned separately.
func stripLine(line string, inComment *bool) (string, string) {
	var code, doc strings.Builder
	inDoc := false

	for i := 0; i < len(line); {
		if *inComment {
			j := strings.Index(line[i:], "*/")
			if j == -1 {
				if inDoc {
					doc.WriteString(line[i:])
				}
				break
			}
			if inDoc {
				doc.WriteString(line[i : i+j])
			}
			i += j + 2
			*inComment = false
			inDoc = false
			continue
		}

		switch {
		case line[i] == '"' || line[i] == '\'':
			j := skipQuoted(line, i)
			code.WriteString(line[i:j])
			i = j
		case strings.HasPrefix(line[i:], "//"):
			rest := line[i+2:]
			if strings.HasPrefix(rest, "/<") || strings.HasPrefix(rest, "!<") {
				doc.WriteString(rest[2:])
			}
			i = len(line)
		case strings.HasPrefix(line[i:], "/*"):
			*inComment = true
			i += 2
			if strings.HasPrefix(line[i:], "*<") || strings.HasPrefix(line[i:], "!<") {
				inDoc = true
				i += 2
			}
		default:
			code.WriteByte(line[i])
			i++
		}
	}

	return code.String(), strings.TrimSpace(doc.String())
}

func appendDoc(doc, more string) string {
	switch {
	case more == "":
		return doc
	case doc == "":
		return more
	}
	return doc + "\n" + more
}

func skipQuoted(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case q:
			return j + 1
		}
	}
	return len(s)
}

// splitTopLevel splits s on sep outside (), [], {} and <>.
func splitTopLevel(s string, sep byte) []string {
	return split(s, sep, true)
}

// split splits s on sep outside brackets. Angle brackets count only when
// angles is set, so shift expressions split correctly.
func split(s string, sep byte, angles bool) []string {
	var parts []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !angles && (c == '<' || c == '>') {
			continue
		}
		switch c {
		case '"', '\'':
			i = skipQuoted(s, i) - 1
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}', '>':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[last:i]))
				last = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(s[last:]); tail != "" || len(parts) > 0 {
		parts = append(parts, tail)
	}

	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func topLevelIndex(s string, c byte) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"', '\'':
			i = skipQuoted(s, i) - 1
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}', '>':
			depth--
		case c:
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// topLevelColon finds a single ':' that is not part of '::'.
func topLevelColon(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}', '>':
			depth--
		case ':':
			if i+1 < len(s) && s[i+1] == ':' {
				i++
				continue
			}
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '"', '\'':
			i = skipQuoted(s, i) - 1
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func operatorIndex(header string) int {
	paren := strings.IndexByte(header, '(')
	for i := strings.Index(header, "operator"); i != -1; {
		end := i + len("operator")
		wordStart := i == 0 || !isIdentChar(header[i-1])
		wordEnd := end >= len(header) || !isIdentChar(header[end])
		if wordStart && wordEnd && (paren == -1 || i < paren) {
			return i
		}
		next := strings.Index(header[end:], "operator")
		if next == -1 {
			break
		}
		i = end + next
	}
	return -1
}

func lastIdent(s string) string {
	m := nameTailRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ""
	}
	return m[1]
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
