package adapters

// Rust returns the built-in Rust adapter (spec §4.2, §4.8, §4.9).
func Rust() Adapter {
	return Adapter{
		Language:    LanguageRust,
		Extensions:  []string{".rs"},
		MarkerFiles: []string{"Cargo.toml"},
		SourceGlobs: []string{"src/**/*.rs"},
		TestGlobs: []string{
			"tests/**/*.rs",
			"src/**/*_test.rs",
			"**/tests.rs",
		},
		IgnoreGlobs: []string{"target/**"},
		Comment: CommentSyntax{
			Line:       "//",
			BlockStart: "/*",
			BlockEnd:   "*/",
		},
		SuppressPrefixes: []string{"#[allow(", "#[expect("},
		DefaultEscapes: []EscapePattern{
			{Name: "unwrap", Pattern: `\.unwrap\(\)`, Action: ActionForbid, TestPolicy: ActionAllow},
			{Name: "expect_call", Pattern: `\.expect\(`, Action: ActionComment, RequiredText: "SAFETY:", TestPolicy: ActionAllow},
			{Name: "unsafe_block", Pattern: `unsafe\s*\{`, Action: ActionComment, RequiredText: "SAFETY:", TestPolicy: ActionComment},
			{Name: "panic_call", Pattern: `panic!\(`, Action: ActionForbid, TestPolicy: ActionAllow},
			{Name: "todo_macro", Pattern: `todo!\(`, Action: ActionCount, MaxCount: 0, TestPolicy: ActionCount},
		},
	}
}

// Go returns the built-in Go adapter.
func Go() Adapter {
	return Adapter{
		Language:    LanguageGo,
		Extensions:  []string{".go"},
		MarkerFiles: []string{"go.mod"},
		SourceGlobs: []string{"**/*.go"},
		TestGlobs:   []string{"**/*_test.go"},
		IgnoreGlobs: []string{"vendor/**"},
		Comment: CommentSyntax{
			Line:       "//",
			BlockStart: "/*",
			BlockEnd:   "*/",
		},
		SuppressPrefixes: []string{"//nolint"},
		DefaultEscapes: []EscapePattern{
			{Name: "panic_call", Pattern: `panic\(`, Action: ActionComment, RequiredText: "", TestPolicy: ActionAllow},
			{Name: "interface_empty", Pattern: `interface\{\}`, Action: ActionCount, MaxCount: 0, TestPolicy: ActionCount},
		},
	}
}

// JavaScript returns the built-in JavaScript/TypeScript adapter.
func JavaScript() Adapter {
	return Adapter{
		Language:    LanguageJavaScript,
		Extensions:  []string{".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs"},
		MarkerFiles: []string{"package.json", "tsconfig.json"},
		SourceGlobs: []string{"src/**/*.{js,jsx,ts,tsx}", "lib/**/*.{js,jsx,ts,tsx}"},
		TestGlobs: []string{
			"**/*.test.{js,jsx,ts,tsx}",
			"**/*.spec.{js,jsx,ts,tsx}",
			"test/**/*.{js,jsx,ts,tsx}",
			"__tests__/**/*.{js,jsx,ts,tsx}",
		},
		IgnoreGlobs: []string{"node_modules/**", "dist/**", "build/**"},
		Comment: CommentSyntax{
			Line:       "//",
			BlockStart: "/*",
			BlockEnd:   "*/",
		},
		SuppressPrefixes: []string{
			"// eslint-disable-next-line",
			"/* eslint-disable",
			"// biome-ignore",
			"@ts-ignore",
			"@ts-expect-error",
		},
		DefaultEscapes: []EscapePattern{
			{Name: "eval_call", Pattern: `\beval\(`, Action: ActionForbid, TestPolicy: ActionAllow},
			{Name: "as_unknown", Pattern: `as unknown`, Action: ActionComment, RequiredText: "SAFETY:", TestPolicy: ActionComment},
			{Name: "console_log", Pattern: `console\.log\(`, Action: ActionCount, MaxCount: 0, TestPolicy: ActionCount},
		},
	}
}

// Ruby returns the built-in Ruby adapter.
func Ruby() Adapter {
	return Adapter{
		Language:    LanguageRuby,
		Extensions:  []string{".rb"},
		MarkerFiles: []string{"Gemfile", "config.ru", "config/application.rb"},
		SourceGlobs: []string{"app/**/*.rb", "lib/**/*.rb"},
		TestGlobs:   []string{"spec/**/*.rb", "test/**/*.rb"},
		IgnoreGlobs: []string{"vendor/**"},
		Comment: CommentSyntax{
			Line: "#",
		},
		SuppressPrefixes: []string{
			"# rubocop:disable",
			"# rubocop:todo",
			"# standard:disable",
		},
		DefaultEscapes: []EscapePattern{
			{Name: "send_call", Pattern: `\.send\(`, Action: ActionComment, RequiredText: "SAFETY:", TestPolicy: ActionAllow},
			{Name: "eval_call", Pattern: `\beval\(`, Action: ActionForbid, TestPolicy: ActionAllow},
		},
	}
}

// Shell returns the built-in Shell adapter.
func Shell() Adapter {
	return Adapter{
		Language:    LanguageShell,
		Extensions:  []string{".sh", ".bash"},
		MarkerFiles: []string{},
		SourceGlobs: []string{"**/*.sh", "**/*.bash"},
		TestGlobs:   []string{"tests/**/*.bats", "test/**/*.bats"},
		IgnoreGlobs: []string{},
		Comment: CommentSyntax{
			Line: "#",
		},
		SuppressPrefixes: []string{"# shellcheck disable="},
		DefaultEscapes: []EscapePattern{
			{Name: "eval_call", Pattern: `\beval\b`, Action: ActionComment, RequiredText: "SAFETY:", TestPolicy: ActionAllow},
		},
	}
}

// Generic is the fallback adapter for files no registered language adapter
// claims (spec §4.2): no default escapes, a conservative source/test split,
// and a comment syntax that assumes '#' since most unrecognized config and
// script formats use it.
func Generic() Adapter {
	return Adapter{
		Language:    LanguageGeneric,
		SourceGlobs: []string{"**/*"},
		TestGlobs:   []string{"**/test*/**", "**/*test*"},
		IgnoreGlobs: []string{".git/**"},
		Comment: CommentSyntax{
			Line: "#",
		},
	}
}

// ActionAllow is the fourth per-pattern test policy: the pattern is not
// checked at all in Test scope (spec §4.8's per-pattern test policy knob).
const ActionAllow EscapeAction = "allow"
