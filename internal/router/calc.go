package router

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	lineCantCalculate = "I'm afraid I can't calculate that."
	maxExpressionLen  = 200
)

var (
	calculatePattern = regexp.MustCompile(`^(?:please\s+)?calculate\s+(.+)$`)
	questionPattern  = regexp.MustCompile(`(?:what's|what is|compute|evaluate)\s+(.+)$`)
	barePattern      = regexp.MustCompile(`^\d+(?:\.\d+)?(?:\s*[-+x*×÷/]\s*\d+(?:\.\d+)?)+$`)
	multiplyPattern  = regexp.MustCompile(`([\d)])\s*x\s*([\d(])`)
	arithmeticChars  = regexp.MustCompile(`^[0-9+\-*/(). ]+$`)
	toCelsius        = regexp.MustCompile(`convert\s+(-?\d+(?:\.\d+)?)\s*(?:degrees\s+)?fahrenheit\s+(?:to|into)\s+celsius`)
	toFahrenheit     = regexp.MustCompile(`convert\s+(-?\d+(?:\.\d+)?)\s*(?:degrees\s+)?celsius\s+(?:to|into)\s+fahrenheit`)

	spokenOperators = strings.NewReplacer(
		"×", "*", "÷", "/",
		"divided by", "/", "divide by", "/", "over", "/",
		"multiplied by", "*", "times", "*", "into", "*",
		"plus", "+", "minus", "-",
	)

	errNotArithmetic = errors.New("not an arithmetic expression")
)

var jokes = []string{
	"Why do programmers prefer dark mode? Because light attracts bugs.",
	"I told my computer I needed a break, and it said: no problem, I'll go to sleep.",
	"There are 10 types of people in the world: those who understand binary and those who don't.",
}

// arithmeticReply answers "calculate X", "what is X" and bare expressions such
// as "12 x 4". A question that is not arithmetic is left for later rules.
func arithmeticReply(c string) (string, bool) {
	if m := calculatePattern.FindStringSubmatch(c); m != nil {
		return resultLine(m[1]), true
	}
	if m := questionPattern.FindStringSubmatch(c); m != nil {
		if v, err := calculate(m[1]); err == nil {
			return "The result is " + formatNumber(v) + ".", true
		}
		return "", false
	}
	if barePattern.MatchString(c) {
		return resultLine(c), true
	}
	return "", false
}

func resultLine(expr string) string {
	v, err := calculate(expr)
	if err != nil {
		return lineCantCalculate
	}
	return "The result is " + formatNumber(v) + "."
}

// temperatureReply converts between Fahrenheit and Celsius.
func temperatureReply(c string) (string, bool) {
	if m := toCelsius.FindStringSubmatch(c); m != nil {
		f, _ := strconv.ParseFloat(m[1], 64)
		return fmt.Sprintf("%s Fahrenheit is %.1f Celsius.", strconv.FormatFloat(f, 'g', -1, 64), (f-32)*5/9), true
	}
	if m := toFahrenheit.FindStringSubmatch(c); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		return fmt.Sprintf("%s Celsius is %.1f Fahrenheit.", strconv.FormatFloat(v, 'g', -1, 64), v*9/5+32), true
	}
	return "", false
}

// calculate evaluates + - * / and parentheses over decimal numbers.
func calculate(raw string) (float64, error) {
	expr := strings.TrimSpace(spokenOperators.Replace(raw))
	expr = strings.TrimRight(expr, "?!= ")
	for multiplyPattern.MatchString(expr) {
		expr = multiplyPattern.ReplaceAllString(expr, "$1*$2")
	}
	if expr == "" || len(expr) > maxExpressionLen || !arithmeticChars.MatchString(expr) || !strings.ContainsAny(expr, "0123456789") {
		return 0, errNotArithmetic
	}

	node, err := parser.ParseExpr(expr)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", expr, err)
	}
	v, err := evaluate(node)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, errors.New("result out of range")
	}
	return v, nil
}

func evaluate(node ast.Expr) (float64, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return 0, errNotArithmetic
		}
		return strconv.ParseFloat(n.Value, 64)
	case *ast.ParenExpr:
		return evaluate(n.X)
	case *ast.UnaryExpr:
		v, err := evaluate(n.X)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return v, nil
		case token.SUB:
			return -v, nil
		}
	case *ast.BinaryExpr:
		x, err := evaluate(n.X)
		if err != nil {
			return 0, err
		}
		y, err := evaluate(n.Y)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x + y, nil
		case token.SUB:
			return x - y, nil
		case token.MUL:
			return x * y, nil
		case token.QUO:
			if y == 0 {
				return 0, errors.New("division by zero")
			}
			return x / y, nil
		}
	}
	return 0, errNotArithmetic
}

// formatNumber drops float noise past six decimals and any trailing zeros.
func formatNumber(v float64) string {
	if math.Abs(v) < 1e15 {
		v = math.Round(v*1e6) / 1e6
	}
	if v == 0 {
		v = 0 // no "-0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
