package evconsole

import "strings"

// OptionMode 记录长选项取值的来源。
type OptionMode int

const (
	// OptionBoolean 无值（或值为空串），视为 true。
	OptionBoolean OptionMode = iota
	// OptionAttached --name=value。
	OptionAttached
	// OptionFollowing --name v1 v2 ...，后续非 "-" 开头的参数以空格拼接为值。
	OptionFollowing
)

func (m OptionMode) String() string {
	switch m {
	case OptionAttached:
		return "attached"
	case OptionFollowing:
		return "following"
	default:
		return "boolean"
	}
}

// OptionValue 长选项的值。
type OptionValue struct {
	Mode  OptionMode
	Value string
}

// Bool 仅在布尔模式下为 true。
func (v OptionValue) Bool() bool { return v.Mode == OptionBoolean }

// String 布尔模式下返回 "true"。
func (v OptionValue) String() string {
	if v.Mode == OptionBoolean {
		return "true"
	}
	return v.Value
}

func newOptionValue(mode OptionMode, value string) OptionValue {
	// 严格按长度判断空值："0" 仍保留为字符串
	if value == "" {
		return OptionValue{Mode: OptionBoolean}
	}
	return OptionValue{Mode: mode, Value: value}
}

// parsedArgs 单次扫描的结果。
type parsedArgs struct {
	options   map[string]OptionValue
	flags     map[string]bool
	commands  []string
	arguments []string
}

// parseArgs 丢弃首个参数（程序名），之后单向扫描，只向前看一个参数。
func parseArgs(args []string) parsedArgs {
	p := parsedArgs{
		options: make(map[string]OptionValue),
		flags:   make(map[string]bool),
	}
	if len(args) == 0 {
		return p
	}
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		switch {
		case strings.HasPrefix(arg, "--"):
			// 单独的 "--" 也是长选项，名称为空串
			name := arg[2:]
			// 与 "cmd:sub" 的判断一致，分隔符需出现在首字符之后
			if idx := strings.Index(name, "="); idx > 0 {
				p.options[name[:idx]] = newOptionValue(OptionAttached, name[idx+1:])
				continue
			}
			var values []string
			for i+1 < len(rest) && !strings.HasPrefix(rest[i+1], "-") {
				i++
				values = append(values, rest[i])
			}
			if len(values) == 0 {
				p.options[name] = OptionValue{Mode: OptionBoolean}
				continue
			}
			p.options[name] = newOptionValue(OptionFollowing, strings.TrimRight(strings.Join(values, " "), " "))
		case strings.HasPrefix(arg, "-"):
			for _, r := range arg[1:] {
				p.flags[string(r)] = true
			}
		case strings.Index(arg, ":") > 0:
			p.commands = append(p.commands, arg)
		default:
			p.arguments = append(p.arguments, arg)
		}
	}
	return p
}
