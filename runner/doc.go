// Package runner executes tests against a fixture registry.
//
// A Session groups tests by module and class, opens a scope context for
// each group, runs every invocation (one per fixture parameter combination
// and test case) in a fresh function context and closes each context when
// its scope ends. Outcomes are delivered to Reporters and collected into a
// Report.
//
//	reg := fixture.NewRegistry()
//	reg.MustRegister(fixture.New("db", openDB, fixture.WithScope(fixture.Session)))
//
//	report, err := runner.NewSession("suite", reg).Run(ctx, []runner.Test{{
//	    Name:     "test_insert",
//	    Module:   "store",
//	    Requires: []string{"db"},
//	    Func: func(ctx context.Context, c *runner.Call) error {
//	        db := runner.MustGet[*sql.DB](c, "db")
//	        ...
//	    },
//	}})
package runner
