// gomuzzle checks that instrumentation modules only use library classes,
// fields and methods that exist in the library versions they target.
//
// Usage:
//
//	# Verify every directive of muzzle.yaml
//	gomuzzle verify -c muzzle.yaml
//
//	# Verify one directive
//	gomuzzle verify -c muzzle.yaml --directive h2-pass
//
//	# Print the references collected from a module
//	gomuzzle print-references -c muzzle.yaml --module jdbc
package main

func main() {
	Execute()
}
