// Package rules converts proposition rule documents into executable rule
// sets and evaluates them against application events.
//
// A rule document is the nested JSON a ruleset-schema item carries:
//
//	{
//	  "version": 1,
//	  "rules": [
//	    {
//	      "condition": "event.type == 'trigger'",
//	      "consequences": [
//	        {"id": "...", "type": "schema", "detail": {"schema": "...", "data": {...}}}
//	      ]
//	    }
//	  ]
//	}
//
// Conditions are expressions in the expr-lang grammar, compiled once at
// install time and evaluated natively. The condition grammar itself is an
// external collaborator: this package only requires that evaluation is
// deterministic and total — an event either matches or it does not, and a
// runtime evaluation failure counts as no match, never a thrown error.
//
// The package also owns history masks: deterministic hashes over
// (event type, activity id) pairs used to match event-history records
// without storing free text.
package rules
