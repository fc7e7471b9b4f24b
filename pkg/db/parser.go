package db

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"microdb/pkg/dberr"
	"microdb/pkg/record"
)

// ErrQuit 由 quit / exit 返回，调用方据此结束会话
var ErrQuit = errors.New("quit")

// SQLParser 负责解析语句并调用 Engine 执行
type SQLParser struct {
	Engine *Engine
	Output io.Writer // 输出目标（终端或客户端连接）
}

func NewSQLParser(engine *Engine, output io.Writer) *SQLParser {
	return &SQLParser{Engine: engine, Output: output}
}

// ParseAndExecute 解析一条语句并执行；空语句什么也不做
func (p *SQLParser) ParseAndExecute(sql string) error {
	toks, err := tokenize(sql)
	if err != nil {
		return err
	}
	for len(toks) > 0 && toks[len(toks)-1] == ";" {
		toks = toks[:len(toks)-1]
	}
	if len(toks) == 0 {
		return nil
	}
	s := &tokenStream{toks: toks}

	switch kw, _ := s.next(); strings.ToLower(kw) {
	case "help":
		return p.finish(s, p.printHelp)
	case "quit", "exit":
		return ErrQuit
	case "show":
		if err := s.expect("tables"); err != nil {
			return err
		}
		return p.finish(s, p.handleShowTables)
	case "describe", "desc":
		name, err := s.ident("table name")
		if err != nil {
			return err
		}
		return p.finish(s, func() error { return p.handleDescribe(name) })
	case "create":
		return p.parseCreate(s)
	case "drop":
		if err := s.expect("table"); err != nil {
			return err
		}
		name, err := s.ident("table name")
		if err != nil {
			return err
		}
		return p.finish(s, func() error { return p.handleDropTable(name) })
	case "insert":
		return p.parseInsert(s)
	case "select":
		return p.parseSelect(s)
	case "delete":
		return p.parseDelete(s)
	default:
		return dberr.Syntax("unknown command %q", kw)
	}
}

// finish 确认语句已经读完再执行
func (p *SQLParser) finish(s *tokenStream, run func() error) error {
	if !s.done() {
		return dberr.Syntax("unexpected %q", s.peek())
	}
	return run()
}

// --- 语句解析 ---

// create table T ( f type , ... )
func (p *SQLParser) parseCreate(s *tokenStream) error {
	if err := s.expect("table"); err != nil {
		return err
	}
	name, err := s.ident("table name")
	if err != nil {
		return err
	}
	if err := s.expect("("); err != nil {
		return err
	}

	var fields []record.Field
	for {
		fname, err := s.ident("field name")
		if err != nil {
			return err
		}
		tname, err := s.ident("field type")
		if err != nil {
			return err
		}
		ft, err := record.ParseFieldType(tname)
		if err != nil {
			return err
		}
		fields = append(fields, record.Field{Name: fname, Type: ft})

		if s.accept(",") {
			continue
		}
		if err := s.expect(")"); err != nil {
			return err
		}
		break
	}
	return p.finish(s, func() error { return p.handleCreateTable(name, fields) })
}

// insert into T values ( v , ... )
func (p *SQLParser) parseInsert(s *tokenStream) error {
	if err := s.expect("into"); err != nil {
		return err
	}
	name, err := s.ident("table name")
	if err != nil {
		return err
	}
	if err := s.expect("values"); err != nil {
		return err
	}
	if err := s.expect("("); err != nil {
		return err
	}

	var literals []string
	for {
		tok, ok := s.next()
		if !ok {
			return dberr.Syntax("expected value, got end of input")
		}
		if tok == "," || tok == ")" {
			return dberr.Syntax("expected value, got %q", tok)
		}
		literals = append(literals, tok)

		if s.accept(",") {
			continue
		}
		if err := s.expect(")"); err != nil {
			return err
		}
		break
	}
	return p.finish(s, func() error { return p.handleInsert(name, literals) })
}

// select * from T [where COND]
func (p *SQLParser) parseSelect(s *tokenStream) error {
	if err := s.expect("*"); err != nil {
		return err
	}
	if err := s.expect("from"); err != nil {
		return err
	}
	name, err := s.ident("table name")
	if err != nil {
		return err
	}
	where, err := p.parseWhere(s, name)
	if err != nil {
		return err
	}
	return p.finish(s, func() error { return p.handleSelect(name, where) })
}

// delete from T [where COND]
func (p *SQLParser) parseDelete(s *tokenStream) error {
	if err := s.expect("from"); err != nil {
		return err
	}
	name, err := s.ident("table name")
	if err != nil {
		return err
	}
	where, err := p.parseWhere(s, name)
	if err != nil {
		return err
	}
	return p.finish(s, func() error { return p.handleDelete(name, where) })
}

// parseWhere 没有 where 子句时返回 nil（匹配所有记录）
func (p *SQLParser) parseWhere(s *tokenStream, table string) (record.Condition, error) {
	if !s.accept("where") {
		return nil, nil
	}
	schema, err := p.Engine.Schema(table)
	if err != nil {
		return nil, err
	}
	return parseCondition(s, schema)
}

// parseCondition
//
//	or      := and { ("||" | "or") and }
//	and     := primary { ("&&" | "and") primary }
//	primary := "(" or ")" | field op literal
func parseCondition(s *tokenStream, schema *record.Schema) (record.Condition, error) {
	left, err := parseAndCondition(s, schema)
	if err != nil {
		return nil, err
	}
	for s.accept("||") || s.accept("or") {
		right, err := parseAndCondition(s, schema)
		if err != nil {
			return nil, err
		}
		left = &record.Or{Left: left, Right: right}
	}
	return left, nil
}

func parseAndCondition(s *tokenStream, schema *record.Schema) (record.Condition, error) {
	left, err := parsePrimaryCondition(s, schema)
	if err != nil {
		return nil, err
	}
	for s.accept("&&") || s.accept("and") {
		right, err := parsePrimaryCondition(s, schema)
		if err != nil {
			return nil, err
		}
		left = &record.And{Left: left, Right: right}
	}
	return left, nil
}

func parsePrimaryCondition(s *tokenStream, schema *record.Schema) (record.Condition, error) {
	if s.accept("(") {
		cond, err := parseCondition(s, schema)
		if err != nil {
			return nil, err
		}
		if err := s.expect(")"); err != nil {
			return nil, err
		}
		return cond, nil
	}

	field, err := s.ident("field name")
	if err != nil {
		return nil, err
	}
	opTok, ok := s.next()
	if !ok {
		return nil, dberr.Syntax("expected operator after %q", field)
	}
	op, err := record.ParseOperator(opTok)
	if err != nil {
		return nil, err
	}
	lit, ok := s.next()
	if !ok {
		return nil, dberr.Syntax("expected value after %q", opTok)
	}
	if lit == "(" || lit == ")" || lit == "," {
		return nil, dberr.Syntax("expected value, got %q", lit)
	}
	if f, ok := schema.Field(field); ok && f.Type == record.TypeInteger && isQuoted(lit) {
		return nil, dberr.Encoding("condition", "field %q expects an integer, got %s", field, lit)
	}
	return record.NewCompare(schema, field, op, unquote(lit))
}

// parseValues 按 schema 把字面量转换成字段值
func parseValues(schema *record.Schema, literals []string) ([]record.Value, error) {
	if len(literals) != schema.NumFields() {
		return nil, dberr.Encoding("insert", "table has %d fields, got %d values",
			schema.NumFields(), len(literals))
	}
	values := make([]record.Value, len(literals))
	for i, lit := range literals {
		f := schema.Fields[i]
		switch f.Type {
		case record.TypeInteger:
			if isQuoted(lit) {
				return nil, dberr.Encoding("insert", "field %q expects an integer, got %s", f.Name, lit)
			}
			n, err := strconv.ParseInt(lit, 10, 32)
			if err != nil {
				return nil, dberr.Encoding("insert", "field %q expects an integer, got %q", f.Name, lit)
			}
			values[i] = record.Int(n)
		case record.TypeString:
			values[i] = record.Text(unquote(lit))
		default:
			return nil, dberr.Corrupt("insert", "field %q has unknown type %d", f.Name, f.Type)
		}
	}
	return values, nil
}

// --- Handler 实现 ---

func (p *SQLParser) printHelp() error {
	fmt.Fprintln(p.Output, "--- MicroDB Help ---")
	fmt.Fprintln(p.Output, "1.  show tables;")
	fmt.Fprintln(p.Output, "2.  create table <name> (<field> integer|string, ...);")
	fmt.Fprintln(p.Output, "3.  describe <table>;")
	fmt.Fprintln(p.Output, "4.  insert into <table> values (<value>, ...);")
	fmt.Fprintln(p.Output, "5.  select * from <table> [where <cond>];")
	fmt.Fprintln(p.Output, "6.  delete from <table> [where <cond>];")
	fmt.Fprintln(p.Output, "7.  drop table <table>;")
	fmt.Fprintln(p.Output, "8.  quit | exit")
	fmt.Fprintln(p.Output, "<cond>: <field> =|!=|>|< <value>, joined with and/&& or or/||")
	return nil
}

func (p *SQLParser) handleShowTables() error {
	tables, err := p.Engine.ListTables()
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		fmt.Fprintln(p.Output, "Empty set.")
		return nil
	}
	t := newTable("Tables")
	for _, name := range tables {
		t.Row(name)
	}
	fmt.Fprintln(p.Output, t.String())
	return nil
}

func (p *SQLParser) handleDescribe(name string) error {
	res, err := p.Engine.DescribeTable(name)
	if err != nil {
		return err
	}
	fmt.Fprintln(p.Output, res)
	return nil
}

func (p *SQLParser) handleCreateTable(name string, fields []record.Field) error {
	if err := p.Engine.CreateTable(name, fields); err != nil {
		return err
	}
	fmt.Fprintln(p.Output, rowsAffected(0))
	return nil
}

func (p *SQLParser) handleDropTable(name string) error {
	if err := p.Engine.DropTable(name); err != nil {
		return err
	}
	fmt.Fprintln(p.Output, rowsAffected(0))
	return nil
}

func (p *SQLParser) handleInsert(name string, literals []string) error {
	schema, err := p.Engine.Schema(name)
	if err != nil {
		return err
	}
	values, err := parseValues(schema, literals)
	if err != nil {
		return err
	}
	if _, err := p.Engine.Insert(name, record.NewRecord(schema, values...)); err != nil {
		return err
	}
	fmt.Fprintln(p.Output, rowsAffected(1))
	return nil
}

func (p *SQLParser) handleSelect(name string, where record.Condition) error {
	schema, err := p.Engine.Schema(name)
	if err != nil {
		return err
	}
	rs, err := p.Engine.Select(name, where)
	if err != nil {
		return err
	}
	if rs.Len() == 0 {
		fmt.Fprintln(p.Output, "Empty set.")
		return nil
	}
	fmt.Fprintln(p.Output, renderRecordSet(schema, rs))
	if rs.Len() == 1 {
		fmt.Fprintln(p.Output, "(1 row)")
	} else {
		fmt.Fprintf(p.Output, "(%d rows)\n", rs.Len())
	}
	return nil
}

func (p *SQLParser) handleDelete(name string, where record.Condition) error {
	n, err := p.Engine.Delete(name, where)
	if err != nil {
		return err
	}
	fmt.Fprintln(p.Output, rowsAffected(n))
	return nil
}
