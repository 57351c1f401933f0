// Package testutil integrates fixture resolution with the standard testing
// package.
//
// # Quick Start
//
// Per-test resolution with automatic teardown:
//
//	func TestMyFeature(t *testing.T) {
//	    res := testutil.T(t).Use(reg, "db")
//	    db := testutil.Get[*DB](t, res, "db")
//	}
//
// Sharing session and module fixtures across a package:
//
//	func TestMain(m *testing.M) {
//	    session = testutil.NewSession(reg)
//	    code := m.Run()
//	    _ = session.Close(context.Background())
//	    os.Exit(code)
//	}
//
//	func TestOne(t *testing.T) {
//	    res := session.Use(t, "db")
//	}
//
// # Components
//
// ComponentFixture adapts anything with Start and Stop into a two-phase
// fixture. ResetFixture adds an autouse fixture resetting a shared
// component after each test.
package testutil
