// Package assrt adapts the assrt.net token query API to the provider contract.
package assrt
