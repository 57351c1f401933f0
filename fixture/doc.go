// Package fixture provides fixture-based dependency injection and lifecycle
// management for test suites.
//
// A fixture is a named factory registered in a Registry. Tests declare the
// fixture names they need; the resolver expands the transitive closure of
// those names into a dependency graph, orders it topologically, and creates
// (or reuses) one Instance per fixture in the ScopeContext matching the
// fixture's Scope. Closing a ScopeContext tears its instances down in exact
// reverse creation order, collecting failures instead of stopping at the
// first one.
//
// # Registration
//
//	reg := fixture.NewRegistry()
//	reg.Register(fixture.New("f1", func(ctx context.Context, req *fixture.Request) (any, error) {
//	    return 1, nil
//	}, fixture.WithScope(fixture.Module)))
//
// # Two-phase fixtures
//
// A Producer yields its value and is suspended until the owning scope
// closes, at which point it resumes to run its teardown:
//
//	reg.Register(fixture.NewProducer("db", func(ctx context.Context, req *fixture.Request, yield fixture.Yield) error {
//	    db := openDB()
//	    tctx := yield(db)
//	    return db.Close(tctx)
//	}))
//
// # Resolution
//
//	session := fixture.NewSessionContext("run")
//	plan, _ := reg.Plan("f2")
//	res, err := fixture.Resolve(ctx, session.MustChild(fixture.Function, "test_x"), plan, nil)
package fixture
