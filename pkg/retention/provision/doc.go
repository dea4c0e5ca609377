// Package provision keeps retention policies in sync with a declarative
// YAML file.
//
// The file lists policies by name together with the containers each one is
// assigned to:
//
//	policies:
//	  - name: finance-7y
//	    default_action: archive
//	    default_target_path: /archive/finance
//	    notify_before_days: 14
//	    auto_process: true
//	    allowed_retention_periods: ["7 years"]
//	    priority: 10
//	    containers: [finance, payroll]
//
// Policies are matched by name. Missing policies are created and changed
// ones are updated in place. Policies that exist only in the store are never
// removed, so entries deleted from the file must be deleted explicitly.
// When containers is omitted the policy's assignments are left alone.
//
// A Provisioner applies the file once at startup and, when watching is
// enabled, again after every debounced change.
package provision
