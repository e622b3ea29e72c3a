// Command snapsync watches per-account import directories and uploads media
// to an Immich-compatible store. The run command polls until interrupted;
// scan performs a single cycle; status and history read the outcome ledger.
package main
