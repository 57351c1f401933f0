// Package demo is the built-in suite run by the fixturekit CLI. It covers
// every scope, a two-phase fixture, an autouse fixture, a namespace
// override and a parametrized fixture.
package demo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kbukum/fixturekit/examples/prime"
	"github.com/kbukum/fixturekit/examples/userdb"
	"github.com/kbukum/fixturekit/examples/users"
	"github.com/kbukum/fixturekit/fixture"
	"github.com/kbukum/fixturekit/runner"
)

// Registry returns a new registry holding the demo fixtures.
func Registry() *fixture.Registry {
	reg := fixture.NewRegistry()

	reg.MustRegister(fixture.New("run_id", func(context.Context, *fixture.Request) (any, error) {
		return uuid.NewString(), nil
	}, fixture.WithScope(fixture.Session), fixture.Autouse()))

	reg.MustRegister(fixture.New("db", func(context.Context, *fixture.Request) (any, error) {
		return userdb.New(), nil
	}, fixture.WithScope(fixture.Session)))

	reg.MustRegister(fixture.NewProducer("scratch_db", func(_ context.Context, _ *fixture.Request, yield fixture.Yield) error {
		db := userdb.New()
		yield(db)
		db.Clear()
		return nil
	}))

	reg.MustRegister(fixture.New("user_manager", func(context.Context, *fixture.Request) (any, error) {
		return users.NewUserManager(), nil
	}))

	mod := reg.Namespace("users")
	mod.MustRegister(fixture.New("f1", fixture.Const(1), fixture.WithScope(fixture.Module)))
	mod.MustRegister(fixture.New("f2", func(_ context.Context, req *fixture.Request) (any, error) {
		f1, err := fixture.Get[int](req, "f1")
		return f1 + 1, err
	}, fixture.Requires("f1")))
	mod.MustRegister(fixture.New("user_manager", func(_ context.Context, req *fixture.Request) (any, error) {
		m, err := fixture.Get[*users.UserManager](req, "user_manager")
		if err != nil {
			return nil, err
		}
		return m, m.AddUser("admin", "admin@example.com")
	}, fixture.Requires("user_manager")), fixture.Override())

	store := reg.Namespace("store")
	store.MustRegister(fixture.New("backend", func(_ context.Context, req *fixture.Request) (any, error) {
		return req.ParamValue(), nil
	}, fixture.WithScope(fixture.Module), fixture.WithParams(fixture.Params("memory", "cached")...)))

	primes := reg.Namespace("math/TestPrimes")
	primes.MustRegister(fixture.New("primes", func(context.Context, *fixture.Request) (any, error) {
		var out []int
		for n := 0; n < 50; n++ {
			if prime.IsPrime(n) {
				out = append(out, n)
			}
		}
		return out, nil
	}, fixture.WithScope(fixture.Class)))

	return reg
}

// Tests returns the demo tests.
func Tests() []runner.Test {
	return []runner.Test{
		{Name: "test_f1_shared", Module: "users", Requires: []string{"f1"}, Func: expectInt("f1", 1)},
		{Name: "test_f2", Module: "users", Requires: []string{"f2"}, Func: expectInt("f2", 2)},
		{Name: "test_admin_seeded", Module: "users", Requires: []string{"user_manager"}, Func: func(_ context.Context, c *runner.Call) error {
			m := runner.MustGet[*users.UserManager](c, "user_manager")
			if _, ok := m.Email("admin"); !ok {
				return fmt.Errorf("admin user missing")
			}
			return nil
		}},
		{Name: "test_store_roundtrip", Module: "store", Requires: []string{"scratch_db", "backend"}, Func: func(_ context.Context, c *runner.Call) error {
			db := runner.MustGet[*userdb.DataBase](c, "scratch_db")
			backend := runner.MustGet[string](c, "backend")
			if err := db.AddUser(1, backend); err != nil {
				return err
			}
			if name, _ := db.Get(1); name != backend {
				return fmt.Errorf("got %q, want %q", name, backend)
			}
			return nil
		}},
		{Name: "test_db_starts_empty", Module: "store", Requires: []string{"db"}, Func: func(_ context.Context, c *runner.Call) error {
			if n := runner.MustGet[*userdb.DataBase](c, "db").Len(); n != 0 {
				return fmt.Errorf("db has %d users", n)
			}
			return nil
		}},
		{Name: "test_is_prime", Module: "math", Class: "TestPrimes", Requires: []string{"primes"}, Cases: runner.Cases(2, 3, 5, 7, 11, 13, 47), Func: func(_ context.Context, c *runner.Call) error {
			n := runner.CaseValue[int](c)
			for _, p := range runner.MustGet[[]int](c, "primes") {
				if p == n {
					return nil
				}
			}
			return fmt.Errorf("%d not in primes", n)
		}},
		{Name: "test_large_primes", Module: "math", Class: "TestPrimes", Func: func(context.Context, *runner.Call) error {
			return runner.Skip("large prime sieve not implemented")
		}},
	}
}

// Find returns the demo test with the given id.
func Find(id string) (runner.Test, bool) {
	for _, t := range Tests() {
		if t.ID() == id {
			return t, true
		}
	}
	return runner.Test{}, false
}

func expectInt(name string, want int) runner.TestFunc {
	return func(_ context.Context, c *runner.Call) error {
		got, err := runner.Get[int](c, name)
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("%s = %d, want %d", name, got, want)
		}
		return nil
	}
}
