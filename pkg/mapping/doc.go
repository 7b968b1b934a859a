// Package mapping defines the stubd mapping model: a request-matcher
// composite paired with a response template, plus priority and scenario
// metadata.
//
// Mappings are plain data. They are decoded from JSON or YAML documents,
// validated with Validate, and compiled into scorers by internal/matching
// when the store accepts them.
//
// # Document shape
//
//	{
//	  "id": "4f6f...",
//	  "title": "get todo",
//	  "priority": 1,
//	  "request": {
//	    "matchers": [
//	      {"kind": "method", "type": "exact", "pattern": "GET"},
//	      {"kind": "path", "type": "wildcard", "pattern": "/todos/{id}"}
//	    ]
//	  },
//	  "response": {"status": 200, "jsonBody": {"id": "{{request.pathParams.id}}"}, "template": true},
//	  "scenarioName": "todo",
//	  "requiredScenarioState": "Started",
//	  "newScenarioState": "Fetched"
//	}
package mapping
