package frameworks

import (
	"github.com/l3aro/go-taint-query/internal/lang"
	"github.com/l3aro/go-taint-query/pkg/registry"
)

// Built-in plugin names.
const (
	CoreName    = "core"
	FlaskName   = "flask"
	DjangoName  = "django"
	ExpressName = "express"
	NextJSName  = "nextjs"
)

func pp(pattern, category string) PackPattern {
	return PackPattern{Pattern: pattern, Category: category}
}

func ppLang(pattern, category, language string) PackPattern {
	return PackPattern{Pattern: pattern, Category: category, Language: language}
}

// Flask registers the request accessors and response helpers of Flask.
func Flask() Pack {
	return Pack{
		PackName: FlaskName,
		Markers:  []string{"request.args", "request.form", "render_template", "Flask("},
		Language: lang.Python,
		Sources: []PackPattern{
			pp("request.args", registry.CategoryUserInput),
			pp("request.form", registry.CategoryUserInput),
			pp("request.values", registry.CategoryUserInput),
			pp("request.json", registry.CategoryUserInput),
			pp("request.get_json", registry.CategoryUserInput),
			pp("request.cookies", registry.CategoryUserInput),
			pp("request.headers", registry.CategoryUserInput),
			pp("request.files", registry.CategoryUserInput),
		},
		Sinks: []PackPattern{
			pp("render_template_string", registry.CategoryXSS),
			pp("make_response", registry.CategoryXSS),
			pp("send_file", registry.CategoryPath),
			pp("redirect", registry.CategoryRedirect),
		},
		Sanitizers: []PackPattern{
			pp("secure_filename", registry.CategoryPath),
			pp("escape", registry.CategoryXSS),
		},
	}
}

// Django registers Django's request dictionaries, raw SQL entry points and
// unescaped output helpers.
func Django() Pack {
	return Pack{
		PackName: DjangoName,
		Markers:  []string{"request.GET", "request.POST", "HttpResponse", "objects."},
		Language: lang.Python,
		Sources: []PackPattern{
			pp("request.GET", registry.CategoryUserInput),
			pp("request.POST", registry.CategoryUserInput),
			pp("request.COOKIES", registry.CategoryUserInput),
			pp("request.META", registry.CategoryUserInput),
			pp("request.body", registry.CategoryUserInput),
			pp("request.FILES", registry.CategoryUserInput),
		},
		Sinks: []PackPattern{
			pp("objects.raw", registry.CategorySQL),
			pp(".extra", registry.CategorySQL),
			pp("RawSQL", registry.CategorySQL),
			pp("mark_safe", registry.CategoryXSS),
			pp("HttpResponse", registry.CategoryXSS),
			pp("HttpResponseRedirect", registry.CategoryRedirect),
		},
		Sanitizers: []PackPattern{
			pp("conditional_escape", registry.CategoryXSS),
			pp("escape", registry.CategoryXSS),
		},
	}
}

// Express registers the request and response objects of Express.
func Express() Pack {
	return Pack{
		PackName: ExpressName,
		Markers:  []string{"req.query", "req.body", "req.params", "res.send", "express("},
		Language: lang.JavaScript,
		Sources: []PackPattern{
			pp("req.query", registry.CategoryUserInput),
			pp("req.body", registry.CategoryUserInput),
			pp("req.params", registry.CategoryUserInput),
			pp("req.cookies", registry.CategoryUserInput),
			pp("req.headers", registry.CategoryUserInput),
		},
		Sinks: []PackPattern{
			pp("res.redirect", registry.CategoryRedirect),
			pp("res.sendFile", registry.CategoryPath),
			pp("res.send", registry.CategoryXSS),
			pp("res.write", registry.CategoryXSS),
		},
		Sanitizers: []PackPattern{
			pp("escapeHtml", registry.CategoryXSS),
			pp("validator.escape", registry.CategoryXSS),
		},
	}
}

// NextJS registers Next.js route handler inputs and responses.
func NextJS() Pack {
	return Pack{
		PackName: NextJSName,
		Markers:  []string{"NextResponse", "searchParams", "getServerSideProps", "NextRequest"},
		Language: lang.JavaScript,
		Sources: []PackPattern{
			pp("req.query", registry.CategoryUserInput),
			pp("searchParams", registry.CategoryUserInput),
			pp("req.body", registry.CategoryUserInput),
			pp("request.json", registry.CategoryUserInput),
			pp("params.", registry.CategoryUserInput),
		},
		Sinks: []PackPattern{
			pp("NextResponse.redirect", registry.CategoryRedirect),
			pp("res.json", registry.CategoryXSS),
			pp("dangerouslySetInnerHTML", registry.CategoryXSS),
		},
		Sanitizers: []PackPattern{
			pp("DOMPurify.sanitize", registry.CategoryXSS),
		},
	}
}

// Core holds the language-level patterns every run registers last, after
// the more precise framework patterns.
func Core() Pack {
	return Pack{
		PackName: CoreName,
		Sources: []PackPattern{
			ppLang("input(", registry.CategoryUserInput, lang.Python),
			ppLang("sys.argv", registry.CategoryUserInput, lang.Python),
			ppLang("os.environ", registry.CategoryUserInput, lang.Python),
			ppLang("process.argv", registry.CategoryUserInput, lang.JavaScript),
			ppLang("process.env", registry.CategoryUserInput, lang.JavaScript),
			ppLang("location.search", registry.CategoryUserInput, lang.JavaScript),
			ppLang("$_GET", registry.CategoryUserInput, lang.PHP),
			ppLang("$_POST", registry.CategoryUserInput, lang.PHP),
			ppLang("$_REQUEST", registry.CategoryUserInput, lang.PHP),
			ppLang("$_COOKIE", registry.CategoryUserInput, lang.PHP),
			ppLang("params[", registry.CategoryUserInput, lang.Ruby),
		},
		Sinks: []PackPattern{
			pp("cursor.execute", registry.CategorySQL),
			pp("executemany", registry.CategorySQL),
			pp(".query", registry.CategorySQL),
			pp("os.system", registry.CategoryCommand),
			pp("os.popen", registry.CategoryCommand),
			pp("subprocess.", registry.CategoryCommand),
			pp("child_process", registry.CategoryCommand),
			pp("shell_exec", registry.CategoryCommand),
			pp("eval", registry.CategoryCodeInjection),
			pp("exec", registry.CategoryCodeInjection),
			pp("pickle.loads", registry.CategoryDeserialization),
			pp("yaml.load", registry.CategoryDeserialization),
			pp("unserialize", registry.CategoryDeserialization),
			pp("hashlib.md5", registry.CategoryWeakCrypto),
			pp("innerHTML", registry.CategoryXSS),
			pp("document.write", registry.CategoryXSS),
			pp("requests.get", registry.CategorySSRF),
			pp("urlopen", registry.CategorySSRF),
			pp("fetch", registry.CategorySSRF),
			pp("open", registry.CategoryPath),
		},
		Sanitizers: []PackPattern{
			pp("shlex.quote", registry.CategoryCommand),
			pp("html.escape", registry.CategoryXSS),
			pp("htmlspecialchars", registry.CategoryXSS),
			pp("encodeURIComponent", registry.CategoryXSS),
			pp("bleach.clean", registry.CategoryXSS),
			pp("os.path.basename", registry.CategoryPath),
			pp("sanitize", registry.CategoryGeneric),
		},
	}
}

// Builtins returns the framework packs in detection order. Core is not
// included; Resolve always appends it.
func Builtins() []Pack {
	return []Pack{Flask(), Django(), Express(), NextJS()}
}
