package sandbox

import "regexp"

// deniedPattern pairs a compiled regex with the API surface it matches,
// for the pre-spawn static denial screen.
type deniedPattern struct {
	name string
	re   *regexp.Regexp
}

// deniedPatterns are the static API-surface patterns screened before a
// script is ever spawned: filesystem access, network access, process
// spawning, and dynamic code construction. This is a coarse textual
// screen, not a sandboxing mechanism by itself — the child's stripped
// environment, the Linux namespaces from applyIsolation, the wall-clock
// timeout and the memory watch are what constrain a spawned script
// (AllowedPaths is only passed to the child as an environment variable,
// not enforced); this just rejects the obviously hostile case cheaply,
// before paying for a process spawn.
var deniedPatterns = []deniedPattern{
	{"filesystem", regexp.MustCompile(`\b(open|file|os\.remove|os\.rename|shutil|pathlib)\s*\(`)},
	{"network", regexp.MustCompile(`\b(socket|urllib|requests|http\.client|ftplib)\b`)},
	{"process_spawn", regexp.MustCompile(`\b(subprocess|os\.system|os\.exec|os\.popen|pty\.spawn)\b`)},
	{"dynamic_code", regexp.MustCompile(`\b(eval|exec|compile|__import__)\s*\(`)},
}

// screenResult reports the first denied pattern a script matches, or ""
// if it matches none.
func screenResult(code string) string {
	for _, p := range deniedPatterns {
		if p.re.MatchString(code) {
			return p.name
		}
	}
	return ""
}
