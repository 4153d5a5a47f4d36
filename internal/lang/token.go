package lang

import "fmt"

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenString
	tokenNumber
	tokenTime

	tokenLeftParen
	tokenRightParen
	tokenLeftBrace
	tokenRightBrace
	tokenComma
	tokenSemicolon

	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenEq
	tokenNotEq
	tokenGt
	tokenGe
	tokenLt
	tokenLe

	// Keywords. Identifier-shaped tokens become keywords during scanning;
	// the parser does not accept them where an identifier is expected.
	tokenAutomation
	tokenSchedule
	tokenIf
	tokenRun
	tokenAnd
	tokenOr
	tokenTrue
	tokenFalse
	tokenNull
	tokenCron
	tokenAt
	tokenWeekly
)

var keywords = map[string]tokenKind{
	"automation": tokenAutomation,
	"schedule":   tokenSchedule,
	"if":         tokenIf,
	"run":        tokenRun,
	"and":        tokenAnd,
	"or":         tokenOr,
	"true":       tokenTrue,
	"false":      tokenFalse,
	"null":       tokenNull,
	"cron":       tokenCron,
	"at":         tokenAt,
	"weekly":     tokenWeekly,
}

// describe is the human-readable name used in "expected ..." diagnostics.
func (k tokenKind) describe() string {
	switch k {
	case tokenEOF:
		return "end of input"
	case tokenIdent:
		return "identifier"
	case tokenString:
		return "string value"
	case tokenNumber:
		return "number value"
	case tokenTime:
		return "time"
	case tokenLeftParen:
		return "'('"
	case tokenRightParen:
		return "')'"
	case tokenLeftBrace:
		return "'{'"
	case tokenRightBrace:
		return "'}'"
	case tokenComma:
		return "','"
	case tokenSemicolon:
		return "';'"
	case tokenPlus:
		return "'+'"
	case tokenMinus:
		return "'-'"
	case tokenStar:
		return "'*'"
	case tokenSlash:
		return "'/'"
	case tokenEq:
		return "'=='"
	case tokenNotEq:
		return "'!='"
	case tokenGt:
		return "'>'"
	case tokenGe:
		return "'>='"
	case tokenLt:
		return "'<'"
	case tokenLe:
		return "'<='"
	case tokenAutomation:
		return "automation declaration"
	case tokenSchedule:
		return "schedule declaration"
	case tokenIf:
		return "condition"
	case tokenRun:
		return "action"
	case tokenAnd:
		return "'and'"
	case tokenOr:
		return "'or'"
	case tokenTrue, tokenFalse:
		return "boolean"
	case tokenNull:
		return "null"
	case tokenCron:
		return "cron interval"
	case tokenAt:
		return "'at'"
	case tokenWeekly:
		return "'weekly'"
	default:
		return fmt.Sprintf("token(%d)", int(k))
	}
}

type token struct {
	kind tokenKind

	// text is the raw source text of the token. For strings it is the
	// unquoted content.
	text string

	// start and end are byte offsets into the source; line and column are
	// 1-based and refer to the first byte.
	start  int
	end    int
	line   int
	column int
}
