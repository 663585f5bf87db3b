package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"attempt:resolve",
		"response:record",
		"solution:view",
		"score:view-own",
	},
	"instructor": {
		"attempt:resolve",
		"attempt:preview",
		"attempt:generate-coursewide",
		"attempt:fork-coursewide",
		"seed:search",
		"score:view-all",
		"score:override",
		"changes:view",
	},
	"designer": {
		"attempt:resolve",
		"attempt:preview",
		"seed:search",
		"score:view-all",
		"content:edit",
	},
	"admin": {
		"*", // everything
	},
}
