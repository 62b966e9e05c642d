package parser

import (
	"fmt"
	"go/ast"
	goparser "go/parser"
	"go/token"
	"sort"
	"strings"
)

// SymbolKind classifies a top-level declaration
type SymbolKind string

const (
	KindFunction  SymbolKind = "func"
	KindMethod    SymbolKind = "method"
	KindStruct    SymbolKind = "struct"
	KindInterface SymbolKind = "interface"
	KindType      SymbolKind = "type"
	KindConst     SymbolKind = "const"
	KindVar       SymbolKind = "var"
)

// Symbol is one declaration in a Go file
type Symbol struct {
	Name      string
	Kind      SymbolKind
	Receiver  string
	Signature string
	Exported  bool
	Line      int
}

// Outline summarizes the declarations of one Go file
type Outline struct {
	Package string
	Imports []string
	Symbols []Symbol
	Errors  []string
}

// Functions lists function and method names, methods as Recv.Name
func (o *Outline) Functions() []string {
	var out []string
	for _, s := range o.Symbols {
		switch s.Kind {
		case KindFunction:
			out = append(out, s.Name)
		case KindMethod:
			out = append(out, s.Receiver+"."+s.Name)
		}
	}
	return out
}

// Types lists struct, interface and named type names
func (o *Outline) Types() []string {
	var out []string
	for _, s := range o.Symbols {
		switch s.Kind {
		case KindStruct, KindInterface, KindType:
			out = append(out, s.Name)
		}
	}
	return out
}

// String renders the outline as prompt text. Empty outlines render as "".
func (o *Outline) String() string {
	if o == nil || (len(o.Symbols) == 0 && len(o.Imports) == 0) {
		return ""
	}
	var b strings.Builder
	if o.Package != "" {
		fmt.Fprintf(&b, "package %s\n", o.Package)
	}
	if len(o.Imports) > 0 {
		fmt.Fprintf(&b, "imports: %s\n", strings.Join(o.Imports, ", "))
	}
	for _, s := range o.Symbols {
		fmt.Fprintf(&b, "%d: %s\n", s.Line, s.Signature)
	}
	return b.String()
}

// Parser holds the file set shared by parses
type Parser struct {
	fset *token.FileSet
}

// New creates a new Parser instance
func New() *Parser {
	return &Parser{fset: token.NewFileSet()}
}

// IsGoFile reports whether a path names Go source
func IsGoFile(path string) bool {
	return strings.HasSuffix(path, ".go")
}

// Parse builds the outline of src; filename is only used in positions
func (p *Parser) Parse(filename string, src []byte) *Outline {
	out := &Outline{}

	file, err := goparser.ParseFile(p.fset, filename, src, goparser.SkipObjectResolution)
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("syntax error: %v", err))
	}
	if file == nil {
		return out
	}

	if file.Name != nil {
		out.Package = file.Name.Name
	}
	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		if imp.Name != nil {
			path = imp.Name.Name + " " + path
		}
		out.Imports = append(out.Imports, path)
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			out.Symbols = append(out.Symbols, p.function(d))
		case *ast.GenDecl:
			out.Symbols = append(out.Symbols, p.genDecl(d)...)
		}
	}
	sort.SliceStable(out.Symbols, func(i, j int) bool { return out.Symbols[i].Line < out.Symbols[j].Line })
	return out
}

func (p *Parser) function(fn *ast.FuncDecl) Symbol {
	sym := Symbol{
		Name:     fn.Name.Name,
		Kind:     KindFunction,
		Exported: token.IsExported(fn.Name.Name),
		Line:     p.line(fn.Pos()),
	}

	var sig strings.Builder
	sig.WriteString("func ")
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		sym.Kind = KindMethod
		sym.Receiver = receiverName(fn.Recv.List[0].Type)
		fmt.Fprintf(&sig, "(%s) ", exprString(fn.Recv.List[0].Type))
	}
	sig.WriteString(fn.Name.Name)
	fmt.Fprintf(&sig, "(%s)", fieldList(fn.Type.Params))
	if res := fieldList(fn.Type.Results); res != "" {
		if fn.Type.Results.NumFields() > 1 || len(fn.Type.Results.List[0].Names) > 0 {
			fmt.Fprintf(&sig, " (%s)", res)
		} else {
			sig.WriteString(" " + res)
		}
	}
	sym.Signature = sig.String()
	return sym
}

func (p *Parser) genDecl(d *ast.GenDecl) []Symbol {
	var out []Symbol
	for _, spec := range d.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			sym := Symbol{
				Name:     s.Name.Name,
				Exported: token.IsExported(s.Name.Name),
				Line:     p.line(s.Pos()),
			}
			switch t := s.Type.(type) {
			case *ast.StructType:
				sym.Kind = KindStruct
				sym.Signature = fmt.Sprintf("type %s struct // %d fields", s.Name.Name, t.Fields.NumFields())
			case *ast.InterfaceType:
				sym.Kind = KindInterface
				sym.Signature = fmt.Sprintf("type %s interface // %d methods", s.Name.Name, t.Methods.NumFields())
			default:
				sym.Kind = KindType
				assign := " "
				if s.Assign.IsValid() {
					assign = " = "
				}
				sym.Signature = "type " + s.Name.Name + assign + exprString(s.Type)
			}
			out = append(out, sym)
		case *ast.ValueSpec:
			kind := KindVar
			if d.Tok == token.CONST {
				kind = KindConst
			}
			for _, name := range s.Names {
				if name.Name == "_" {
					continue
				}
				sig := string(kind) + " " + name.Name
				if s.Type != nil {
					sig += " " + exprString(s.Type)
				}
				out = append(out, Symbol{
					Name:      name.Name,
					Kind:      kind,
					Exported:  token.IsExported(name.Name),
					Line:      p.line(name.Pos()),
					Signature: sig,
				})
			}
		}
	}
	return out
}

func (p *Parser) line(pos token.Pos) int {
	return p.fset.Position(pos).Line
}

func receiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverName(t.X)
	case *ast.IndexExpr:
		return receiverName(t.X)
	case *ast.IndexListExpr:
		return receiverName(t.X)
	case *ast.Ident:
		return t.Name
	}
	return ""
}

func fieldList(fl *ast.FieldList) string {
	if fl == nil || len(fl.List) == 0 {
		return ""
	}
	var parts []string
	for _, field := range fl.List {
		typ := exprString(field.Type)
		if len(field.Names) == 0 {
			parts = append(parts, typ)
			continue
		}
		for _, name := range field.Names {
			parts = append(parts, name.Name+" "+typ)
		}
	}
	return strings.Join(parts, ", ")
}

func exprString(expr ast.Expr) string {
	switch t := expr.(type) {
	case nil:
		return ""
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprString(t.X)
	case *ast.ArrayType:
		return "[]" + exprString(t.Elt)
	case *ast.MapType:
		return "map[" + exprString(t.Key) + "]" + exprString(t.Value)
	case *ast.ChanType:
		return "chan " + exprString(t.Value)
	case *ast.FuncType:
		return "func(" + fieldList(t.Params) + ")"
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.StructType:
		return "struct{}"
	case *ast.SelectorExpr:
		return exprString(t.X) + "." + t.Sel.Name
	case *ast.Ellipsis:
		return "..." + exprString(t.Elt)
	case *ast.IndexExpr:
		return exprString(t.X) + "[" + exprString(t.Index) + "]"
	default:
		return "..."
	}
}
