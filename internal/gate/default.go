package gate

// DefaultLists contains the built-in blocklist and allowlist.
// The allowlist decides what may run; the blocklist catches dangerous idioms
// and chained commands that a first-token check would miss.
var DefaultLists = Lists{
	Blocklist: []string{
		"rm -rf /",
		"rm -rf ~",
		"rm -rf /*",
		"> /dev/",
		"| rm",
		"; rm",
		"&& rm -rf",
		"sudo",
		"chmod 777",
		"curl | bash",
		"curl | sh",
		"wget | bash",
		"wget | sh",
		"eval",
		"$(curl",
		"$(wget",
		"mkfs",
		"dd if=",
		":(){", // fork bomb
		">/dev/sda",
		">/dev/null 2>&1 &", // silenced background job
	},
	Allowlist: []string{
		// files
		"ls",
		"cat",
		"head",
		"tail",
		"wc",
		"grep",
		"find",
		"cp",
		"mkdir",
		"chmod",
		"pwd",
		"tree",
		"diff",

		// node
		"npm",
		"node",
		"npx",
		"tsx",

		"git",

		// processes
		"ps",
		"lsof",
		"pkill",
		"sleep",

		"curl",

		// build and test
		"tsc",
		"jest",
		"vitest",
		"esbuild",
		"vite",
	},
}
