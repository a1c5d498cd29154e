package sqlcheck

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// RejectionKind classifies why a query was refused before execution.
type RejectionKind string

const (
	RejectSyntax    RejectionKind = "syntax_error"
	RejectForbidden RejectionKind = "forbidden_construct"
	RejectSchema    RejectionKind = "schema_violation"
)

// Rejection describes a validation failure, pointing at the offending token so
// the front-end can highlight it for the student.
type Rejection struct {
	Kind    RejectionKind `json:"kind"`
	Message string        `json:"message"`
	Token   string        `json:"token,omitempty"`
	Start   int           `json:"start"`
	End     int           `json:"end"`
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	if r.Token == "" {
		return fmt.Sprintf("%s: %s", r.Kind, r.Message)
	}
	return fmt.Sprintf("%s: %s (at %q)", r.Kind, r.Message, r.Token)
}

// CanonicalQuery is the validated, normalized form of a submitted statement.
type CanonicalQuery struct {
	// Text is the statement with comments stripped and whitespace collapsed,
	// safe to execute and to show back to the student.
	Text string
	// Fingerprint is a stable hash of the case-folded token stream, used for
	// duplicate and answer-sharing detection.
	Fingerprint string
	// Tables and Columns are the schema objects the statement references.
	Tables  []string
	Columns []string
}

// Statement keywords that can never appear in a sandboxed query. CREATE is
// included so temp tables and views cannot be used to pin executor memory.
var forbiddenKeywords = map[string]struct{}{
	"insert": {}, "update": {}, "delete": {}, "drop": {}, "alter": {},
	"create": {}, "replace": {}, "truncate": {}, "attach": {}, "detach": {},
	"pragma": {}, "vacuum": {}, "reindex": {}, "grant": {}, "revoke": {},
	"begin": {}, "commit": {}, "rollback": {}, "savepoint": {},
}

// Keywords of the supported SELECT grammar subset; these are never treated as
// column references during the schema check.
var selectKeywords = map[string]struct{}{
	"select": {}, "from": {}, "where": {}, "group": {}, "by": {}, "having": {},
	"order": {}, "limit": {}, "offset": {}, "as": {}, "and": {}, "or": {},
	"not": {}, "in": {}, "is": {}, "null": {}, "like": {}, "glob": {},
	"between": {}, "distinct": {}, "all": {}, "on": {}, "using": {},
	"inner": {}, "left": {}, "right": {}, "full": {}, "outer": {}, "cross": {},
	"join": {}, "natural": {}, "asc": {}, "desc": {}, "case": {}, "when": {},
	"then": {}, "else": {}, "end": {}, "union": {}, "intersect": {},
	"except": {}, "exists": {}, "escape": {}, "cast": {}, "collate": {},
}

var zeroWidthReplacer = strings.NewReplacer(
	"\u200b", "", "\u200c", "", "\u200d", "", "\ufeff", "",
)

// Normalize folds unicode lookalikes and strips zero-width characters that
// could smuggle keywords past a naive scan.
func Normalize(sql string) string {
	s := norm.NFKC.String(sql)
	s = zeroWidthReplacer.Replace(s)
	return strings.TrimSpace(s)
}

// Validate statically checks a candidate statement against the sandbox rules
// and the published schema. It returns either a canonical query ready for
// execution or a rejection pinpointing the first offending token. Nothing is
// executed here.
func Validate(sql string, schema Schema) (CanonicalQuery, *Rejection) {
	src := Normalize(sql)
	if src == "" {
		return CanonicalQuery{}, &Rejection{Kind: RejectSyntax, Message: "empty query"}
	}

	tokens, rej := lex(src)
	if rej != nil {
		return CanonicalQuery{}, rej
	}
	if len(tokens) == 0 {
		return CanonicalQuery{}, &Rejection{Kind: RejectSyntax, Message: "empty query"}
	}

	if !tokens[0].is("select") {
		return CanonicalQuery{}, &Rejection{
			Kind:    RejectForbidden,
			Message: "only SELECT statements are allowed",
			Token:   tokens[0].text,
			Start:   tokens[0].start,
			End:     tokens[0].end,
		}
	}

	for i, tok := range tokens {
		if tok.typ == tokenSymbol && tok.text == ";" && i != len(tokens)-1 {
			next := tokens[i+1]
			return CanonicalQuery{}, &Rejection{
				Kind:    RejectForbidden,
				Message: "multiple statements are not allowed",
				Token:   next.text,
				Start:   tok.start,
				End:     next.end,
			}
		}
		if tok.typ == tokenIdent {
			if _, bad := forbiddenKeywords[strings.ToLower(tok.text)]; bad {
				return CanonicalQuery{}, &Rejection{
					Kind:    RejectForbidden,
					Message: fmt.Sprintf("keyword %s is not allowed in a read-only query", strings.ToUpper(tok.text)),
					Token:   tok.text,
					Start:   tok.start,
					End:     tok.end,
				}
			}
		}
	}

	// drop trailing semicolon before the reference checks
	if last := tokens[len(tokens)-1]; last.typ == tokenSymbol && last.text == ";" {
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return CanonicalQuery{}, &Rejection{Kind: RejectSyntax, Message: "empty query"}
	}

	tables, aliases, rej := collectTables(tokens, schema)
	if rej != nil {
		return CanonicalQuery{}, rej
	}

	columns, rej := checkColumns(tokens, schema, tables, aliases)
	if rej != nil {
		return CanonicalQuery{}, rej
	}

	return CanonicalQuery{
		Text:        renderTokens(tokens),
		Fingerprint: fingerprint(tokens),
		Tables:      sortedKeys(tables),
		Columns:     columns,
	}, nil
}

// collectTables walks FROM/JOIN clauses gathering referenced tables and their
// aliases. Subqueries contribute their own FROM clauses when the walk reaches
// them; derived-table aliases are recorded so later column checks accept them.
func collectTables(tokens []token, schema Schema) (map[string]struct{}, map[string]string, *Rejection) {
	tables := make(map[string]struct{})
	aliases := make(map[string]string)

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !(tok.is("from") || tok.is("join")) {
			continue
		}
		j := i + 1
		for j < len(tokens) {
			// derived table: alias it but let its inner FROM be handled later
			if tokens[j].typ == tokenSymbol && tokens[j].text == "(" {
				depth := 1
				j++
				for j < len(tokens) && depth > 0 {
					switch {
					case tokens[j].typ == tokenSymbol && tokens[j].text == "(":
						depth++
					case tokens[j].typ == tokenSymbol && tokens[j].text == ")":
						depth--
					}
					j++
				}
				j = consumeAlias(tokens, j, "", aliases)
			} else if tokens[j].typ == tokenIdent && !isSelectKeyword(tokens[j].text) {
				name := tokens[j].text
				if !schema.HasTable(name) {
					return nil, nil, &Rejection{
						Kind:    RejectSchema,
						Message: fmt.Sprintf("unknown table %q", name),
						Token:   name,
						Start:   tokens[j].start,
						End:     tokens[j].end,
					}
				}
				tables[strings.ToLower(name)] = struct{}{}
				j = consumeAlias(tokens, j+1, strings.ToLower(name), aliases)
			} else {
				break
			}

			// comma-separated table list continues the FROM clause
			if j < len(tokens) && tokens[j].typ == tokenSymbol && tokens[j].text == "," {
				j++
				continue
			}
			break
		}
		i = j - 1
	}
	return tables, aliases, nil
}

// consumeAlias records an optional `AS name` or bare alias after a table
// reference and returns the next unread position.
func consumeAlias(tokens []token, pos int, table string, aliases map[string]string) int {
	if pos < len(tokens) && tokens[pos].is("as") {
		pos++
	}
	if pos < len(tokens) && tokens[pos].typ == tokenIdent && !isSelectKeyword(tokens[pos].text) {
		aliases[strings.ToLower(tokens[pos].text)] = table
		return pos + 1
	}
	return pos
}

func checkColumns(tokens []token, schema Schema, tables map[string]struct{}, aliases map[string]string) ([]string, *Rejection) {
	tableList := sortedKeys(tables)
	seen := make(map[string]struct{})
	var columns []string

	// column aliases introduced in the select list are legal in ORDER BY; SQLite
	// accepts both `expr AS name` and the bare form `expr name`
	columnAliases := make(map[string]struct{})
	for i := 1; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.typ != tokenIdent || isSelectKeyword(tok.text) {
			continue
		}
		prev := tokens[i-1]
		aliased := prev.is("as") ||
			(prev.typ == tokenIdent && !isSelectKeyword(prev.text)) ||
			prev.typ == tokenNumber || prev.typ == tokenString ||
			(prev.typ == tokenSymbol && (prev.text == ")" || prev.text == "*"))
		if !aliased {
			continue
		}
		// a qualifier or function name is not an alias
		if i+1 < len(tokens) && tokens[i+1].typ == tokenSymbol &&
			(tokens[i+1].text == "." || tokens[i+1].text == "(") {
			continue
		}
		columnAliases[strings.ToLower(tok.text)] = struct{}{}
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.typ != tokenIdent || isSelectKeyword(tok.text) {
			continue
		}
		lower := strings.ToLower(tok.text)

		// function call
		if i+1 < len(tokens) && tokens[i+1].typ == tokenSymbol && tokens[i+1].text == "(" {
			continue
		}
		// table name position or alias definition, already handled
		if i > 0 && (tokens[i-1].is("from") || tokens[i-1].is("join") || tokens[i-1].is("as")) {
			continue
		}
		if _, ok := tables[lower]; ok {
			// bare table mention (e.g. products.* qualifier handled below)
			if i+1 < len(tokens) && tokens[i+1].typ == tokenSymbol && tokens[i+1].text == "." {
				continue
			}
			continue
		}
		if _, ok := aliases[lower]; ok {
			continue
		}
		if _, ok := columnAliases[lower]; ok {
			continue
		}

		// qualified reference: resolve the qualifier, then check the column
		if i >= 2 && tokens[i-1].typ == tokenSymbol && tokens[i-1].text == "." && tokens[i-2].typ == tokenIdent {
			qualifier := strings.ToLower(tokens[i-2].text)
			target := qualifier
			if mapped, ok := aliases[qualifier]; ok {
				target = mapped
			}
			if target == "" {
				// derived-table alias: columns are not statically known
				continue
			}
			if !schema.TableHasColumn(target, lower) {
				return nil, &Rejection{
					Kind:    RejectSchema,
					Message: fmt.Sprintf("unknown column %q in table %q", tok.text, target),
					Token:   tok.text,
					Start:   tok.start,
					End:     tok.end,
				}
			}
			columns = appendColumn(columns, seen, lower)
			continue
		}

		if !schema.AnyTableHasColumn(tableList, lower) {
			return nil, &Rejection{
				Kind:    RejectSchema,
				Message: fmt.Sprintf("unknown column %q", tok.text),
				Token:   tok.text,
				Start:   tok.start,
				End:     tok.end,
			}
		}
		columns = appendColumn(columns, seen, lower)
	}

	sort.Strings(columns)
	return columns, nil
}

func appendColumn(columns []string, seen map[string]struct{}, name string) []string {
	if _, ok := seen[name]; ok {
		return columns
	}
	seen[name] = struct{}{}
	return append(columns, name)
}

// renderTokens reconstructs a single-line statement from the token stream,
// re-quoting string literals. Whitespace and comments are gone; semantics are
// unchanged because literal contents are preserved verbatim.
func renderTokens(tokens []token) string {
	var sb strings.Builder
	for i, tok := range tokens {
		text := tok.text
		if tok.typ == tokenString {
			text = "'" + strings.ReplaceAll(tok.text, "'", "''") + "'"
		}
		if i > 0 && needsSpace(tokens[i-1], tok) {
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
	}
	return sb.String()
}

func needsSpace(prev, cur token) bool {
	if cur.typ == tokenSymbol {
		switch cur.text {
		case ",", ")", ";", ".":
			return false
		}
	}
	if prev.typ == tokenSymbol {
		switch prev.text {
		case "(", ".":
			return false
		}
	}
	return true
}

func fingerprint(tokens []token) string {
	var sb strings.Builder
	for i, tok := range tokens {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if tok.typ == tokenIdent {
			sb.WriteString(strings.ToLower(tok.text))
		} else {
			sb.WriteString(tok.text)
		}
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:16])
}

func isSelectKeyword(text string) bool {
	_, ok := selectKeywords[strings.ToLower(text)]
	return ok
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
