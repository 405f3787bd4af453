package greeter

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const lambdaImportPath = "github.com/aws/aws-lambda-go/lambda"

// Validate checks that the handler source at path (a main.go file or the
// directory holding it) declares main and hands a handler to lambda.Start.
func Validate(path string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "main.go")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: failure in reading %s: %w", ErrInvalidSource, path, err)
	}
	fileSet := token.NewFileSet()
	node, err := parser.ParseFile(fileSet, filepath.Base(path), data, parser.ParseComments)
	if err != nil {
		return fmt.Errorf("%w: failure in parsing %s: %w", ErrInvalidSource, path, err)
	}
	if findFunc(node, ast.NewIdent("main")) == nil {
		return fmt.Errorf("%w: main function not found in %s", ErrInvalidSource, path)
	}
	pkgName, ok := lambdaImportName(node)
	if !ok {
		return fmt.Errorf("%w: %s does not import %s", ErrInvalidSource, path, lambdaImportPath)
	}
	handler, ok := lambdaStartHandler(node, pkgName)
	if !ok {
		return fmt.Errorf("%w: main function does not call %s.Start(handler)", ErrInvalidSource, pkgName)
	}
	if fn := findFunc(node, handler); fn != nil {
		if err := checkHandlerSignature(fn.Type); err != nil {
			return fmt.Errorf("%w: handler %s: %w", ErrInvalidSource, fn.Name.Name, err)
		}
	}
	return nil
}

func lambdaImportName(file *ast.File) (string, bool) {
	for _, imp := range file.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil || p != lambdaImportPath {
			continue
		}
		if imp.Name != nil {
			return imp.Name.Name, true
		}
		return "lambda", true
	}
	return "", false
}

// lambdaStartHandler finds a pkgName.Start* call inside main and returns
// its first argument.
func lambdaStartHandler(file *ast.File, pkgName string) (ast.Expr, bool) {
	mainFn := findFunc(file, ast.NewIdent("main"))
	if mainFn == nil || mainFn.Body == nil {
		return nil, false
	}
	var handler ast.Expr
	ast.Inspect(mainFn.Body, func(n ast.Node) bool {
		if handler != nil {
			return false
		}
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		x, ok := sel.X.(*ast.Ident)
		if ok && x.Name == pkgName && strings.HasPrefix(sel.Sel.Name, "Start") && len(call.Args) > 0 {
			handler = call.Args[0]
			return false
		}
		return true
	})
	return handler, handler != nil
}

// findFunc resolves expr to a top level function declared in file. Method
// values, closures and functions from other files resolve to nil.
func findFunc(file *ast.File, expr ast.Expr) *ast.FuncDecl {
	ident, ok := expr.(*ast.Ident)
	if !ok {
		return nil
	}
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if ok && fn.Recv == nil && fn.Name.Name == ident.Name {
			return fn
		}
	}
	return nil
}

// checkHandlerSignature applies the rules lambda.Start enforces at run
// time: at most two arguments, the first a context.Context when there are
// two, and at most two results, the last of which is an error.
func checkHandlerSignature(fnType *ast.FuncType) error {
	params := fieldTypes(fnType.Params)
	if len(params) > 2 {
		return fmt.Errorf("takes %d arguments, at most 2 are allowed", len(params))
	}
	if len(params) == 2 && !isContextType(params[0]) {
		return fmt.Errorf("first of two arguments must be context.Context")
	}
	results := fieldTypes(fnType.Results)
	if len(results) > 2 {
		return fmt.Errorf("returns %d values, at most 2 are allowed", len(results))
	}
	if len(results) > 0 && !isErrorType(results[len(results)-1]) {
		return fmt.Errorf("last return value must be an error")
	}
	return nil
}

func fieldTypes(fields *ast.FieldList) []ast.Expr {
	if fields == nil {
		return nil
	}
	var types []ast.Expr
	for _, f := range fields.List {
		n := len(f.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			types = append(types, f.Type)
		}
	}
	return types
}

func isContextType(expr ast.Expr) bool {
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	x, ok := sel.X.(*ast.Ident)
	return ok && x.Name == "context" && sel.Sel.Name == "Context"
}

func isErrorType(expr ast.Expr) bool {
	ident, ok := expr.(*ast.Ident)
	return ok && ident.Name == "error"
}
