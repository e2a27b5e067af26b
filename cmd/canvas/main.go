// Command canvas runs the Business Canvas Builder gateway and its tooling.
package main

func main() {
	Execute()
}
