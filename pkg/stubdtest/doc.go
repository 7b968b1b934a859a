// Package stubdtest runs an in-process stubd for Go tests.
//
//	func TestClient(t *testing.T) {
//	    srv := stubdtest.New(t)
//
//	    srv.Given("GET", "/users/{id}").
//	        WithStatus(200).
//	        WithJSON(map[string]string{"id": "{{request.pathParams.id}}"}).
//	        WithTemplate().
//	        Reply()
//
//	    resp, err := srv.Client().Get(srv.URL() + "/users/42")
//	    // ...
//	    srv.AssertCalledTimes(t, "GET", "/users/{id}", 1)
//	}
//
// The server is closed by t.Cleanup. The admin API is mounted under
// /__admin, and every request is kept in the journal returned by Requests.
package stubdtest
