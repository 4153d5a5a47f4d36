package lang

import (
	"strconv"
	"strings"

	"github.com/hatdsl/hat/internal/value"
)

// Operator precedence, lowest first. Every level is left-associative.
var precedence = map[tokenKind]int{
	tokenEq:    1,
	tokenNotEq: 1,
	tokenAnd:   2,
	tokenOr:    2,
	tokenGt:    3,
	tokenGe:    3,
	tokenLt:    3,
	tokenLe:    3,
	tokenPlus:  4,
	tokenMinus: 4,
	tokenStar:  5,
	tokenSlash: 5,
}

var operators = map[tokenKind]Operation{
	tokenEq:    OpEq,
	tokenNotEq: OpNotEq,
	tokenAnd:   OpAnd,
	tokenOr:    OpOr,
	tokenGt:    OpGt,
	tokenGe:    OpGe,
	tokenLt:    OpLt,
	tokenLe:    OpLe,
	tokenPlus:  OpAdd,
	tokenMinus: OpSub,
	tokenStar:  OpMul,
	tokenSlash: OpDiv,
}

// Parse translates HAT source into its automations and schedule tasks.
// The filename only labels diagnostics.
func Parse(filename, src string) (*Program, error) {
	tokens, lexErr := newLexer(src).scan()
	if lexErr != nil {
		lexErr.File = filename
		return nil, lexErr
	}

	p := &parser{file: filename, src: src, tokens: tokens}
	program, err := p.parseProgram()
	if err != nil {
		return nil, err
	}
	return program, nil
}

// ParseTime interprets a "hh[:mm[:ss]]" literal; missing components default
// to zero.
func ParseTime(text string) (value.Time, error) {
	parts := strings.SplitN(text, ":", 3)
	components := [3]int{}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return value.Time{}, err
		}
		components[i] = n
	}
	return value.NewTime(components[0], components[1], components[2])
}

type parser struct {
	file   string
	src    string
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

// expect consumes a token of the given kind or fails with it as the
// expected set.
func (p *parser) expect(kind tokenKind) (token, error) {
	if p.peek().kind == kind {
		return p.advance(), nil
	}
	return token{}, p.errorHere(kind.describe())
}

func (p *parser) errorHere(expected ...string) error {
	tok := p.peek()
	return &ParseError{
		File:     p.file,
		Line:     tok.line,
		Column:   tok.column,
		Start:    tok.start,
		End:      tok.end,
		LineText: sourceLine(p.src, tok.start),
		Expected: expected,
	}
}

func (p *parser) parseProgram() (*Program, error) {
	program := &Program{}
	for {
		switch p.peek().kind {
		case tokenEOF:
			return program, nil
		case tokenAutomation:
			automation, err := p.parseAutomation()
			if err != nil {
				return nil, err
			}
			program.Automations = append(program.Automations, automation)
		case tokenSchedule:
			task, err := p.parseSchedule()
			if err != nil {
				return nil, err
			}
			program.ScheduleTasks = append(program.ScheduleTasks, task)
		default:
			return nil, p.errorHere("automation declaration", "schedule declaration", "end of input")
		}
	}
}

// parseName accepts an identifier or a string literal as a declaration name.
func (p *parser) parseName() (string, error) {
	switch p.peek().kind {
	case tokenIdent:
		return p.advance().text, nil
	case tokenString:
		return p.advance().text, nil
	default:
		return "", p.errorHere("identifier", "string value")
	}
}

func (p *parser) parseAutomation() (*Automation, error) {
	p.advance() // automation keyword

	name, err := p.parseName()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(tokenLeftParen); err != nil {
		return nil, err
	}

	var triggers []string
	for {
		trigger, err := p.expect(tokenIdent)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, trigger.text)
		if p.peek().kind != tokenComma {
			break
		}
		p.advance()
	}

	if _, err := p.expect(tokenRightParen); err != nil {
		return nil, err
	}

	conditions, actions, err := p.parseBody()
	if err != nil {
		return nil, err
	}

	return &Automation{Name: name, Triggers: triggers, Conditions: conditions, Actions: actions}, nil
}

func (p *parser) parseSchedule() (*ScheduleTask, error) {
	p.advance() // schedule keyword

	name, err := p.parseName()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(tokenLeftParen); err != nil {
		return nil, err
	}

	interval, err := p.parseScheduleInterval()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(tokenRightParen); err != nil {
		return nil, err
	}

	conditions, actions, err := p.parseBody()
	if err != nil {
		return nil, err
	}

	return &ScheduleTask{Name: name, Interval: interval, Conditions: conditions, Actions: actions}, nil
}

func (p *parser) parseScheduleInterval() (ScheduleInterval, error) {
	switch p.peek().kind {
	case tokenCron:
		p.advance()
		if _, err := p.expect(tokenLeftParen); err != nil {
			return ScheduleInterval{}, err
		}
		expr, err := p.expect(tokenString)
		if err != nil {
			return ScheduleInterval{}, err
		}
		if _, err := p.expect(tokenRightParen); err != nil {
			return ScheduleInterval{}, err
		}
		return ScheduleInterval{Cron: expr.text}, nil

	case tokenWeekly, tokenAt:
		var weekday *Weekday
		if p.peek().kind == tokenWeekly {
			p.advance()
			dayTok, err := p.expect(tokenIdent)
			if err != nil {
				return ScheduleInterval{}, err
			}
			day, err := ParseWeekday(dayTok.text)
			if err != nil {
				return ScheduleInterval{}, p.errorAtToken(dayTok, "weekday of the schedule interval")
			}
			weekday = &day
		}
		if _, err := p.expect(tokenAt); err != nil {
			return ScheduleInterval{}, err
		}
		timeTok, err := p.expect(tokenTime)
		if err != nil {
			return ScheduleInterval{}, err
		}
		at, err := ParseTime(timeTok.text)
		if err != nil {
			return ScheduleInterval{}, p.errorAtToken(timeTok, "time between 00:00:00 and 23:59:59")
		}
		return ScheduleInterval{Weekday: weekday, At: at}, nil

	default:
		return ScheduleInterval{}, p.errorHere("schedule interval")
	}
}

func (p *parser) parseBody() (conditions, actions []Expression, err error) {
	if _, err := p.expect(tokenLeftBrace); err != nil {
		return nil, nil, err
	}

	for {
		switch p.peek().kind {
		case tokenIf:
			p.advance()
			expr, err := p.parseExpression(0)
			if err != nil {
				return nil, nil, err
			}
			conditions = append(conditions, expr)
		case tokenRun:
			p.advance()
			expr, err := p.parseExpression(0)
			if err != nil {
				return nil, nil, err
			}
			actions = append(actions, expr)
		case tokenRightBrace:
			p.advance()
			return conditions, actions, nil
		default:
			return nil, nil, p.errorHere("condition", "action", "'}'")
		}

		// Statement separators are optional.
		if p.peek().kind == tokenSemicolon {
			p.advance()
		}
	}
}

// parseExpression is a Pratt parser over the precedence table; operators on
// the same level associate to the left.
func (p *parser) parseExpression(minPrec int) (Expression, error) {
	lhs, err := p.parseAtom()
	if err != nil {
		return nil, err
	}

	for {
		prec, ok := precedence[p.peek().kind]
		if !ok || prec < minPrec {
			return lhs, nil
		}
		op := operators[p.advance().kind]
		rhs, err := p.parseExpression(prec + 1)
		if err != nil {
			return nil, err
		}
		lhs = BinaryOperation{LHS: lhs, Op: op, RHS: rhs}
	}
}

func (p *parser) parseAtom() (Expression, error) {
	tok := p.peek()
	switch tok.kind {
	case tokenNull:
		p.advance()
		return Constant{Value: value.Null()}, nil

	case tokenTrue:
		p.advance()
		return Constant{Value: value.Bool(true)}, nil

	case tokenFalse:
		p.advance()
		return Constant{Value: value.Bool(false)}, nil

	case tokenString:
		p.advance()
		return Constant{Value: value.String(tok.text)}, nil

	case tokenTime:
		p.advance()
		t, err := ParseTime(tok.text)
		if err != nil {
			return nil, p.errorAtToken(tok, "time between 00:00:00 and 23:59:59")
		}
		return Constant{Value: value.TimeValue(t)}, nil

	case tokenNumber:
		p.advance()
		n, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, p.errorAtToken(tok, "number value")
		}
		return Constant{Value: value.Number(n)}, nil

	case tokenIdent:
		p.advance()
		if _, err := p.expect(tokenLeftParen); err != nil {
			return nil, err
		}
		var args []Expression
		if p.peek().kind != tokenRightParen {
			for {
				arg, err := p.parseExpression(0)
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.peek().kind != tokenComma {
					break
				}
				p.advance()
			}
		}
		if _, err := p.expect(tokenRightParen); err != nil {
			return nil, err
		}
		return FunctionCall{Name: tok.text, Args: args}, nil

	case tokenLeftParen:
		p.advance()
		expr, err := p.parseExpression(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRightParen); err != nil {
			return nil, err
		}
		return expr, nil

	default:
		return nil, p.errorHere("null", "boolean", "string value", "time", "number value", "function", "'('")
	}
}

func (p *parser) errorAtToken(tok token, expected ...string) error {
	return &ParseError{
		File:     p.file,
		Line:     tok.line,
		Column:   tok.column,
		Start:    tok.start,
		End:      tok.end,
		LineText: sourceLine(p.src, tok.start),
		Expected: expected,
	}
}
