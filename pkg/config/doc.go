// Configuration sources, lowest precedence first:
//
//  1. NewDefault
//  2. the YAML file passed to Load, after ${VAR} substitution
//  3. LOGEVENTS_<SECTION>_<KEY> environment variables (BASE_URL is also read
//     as-is for secrets.base_url)
//  4. command line flags applied by cmd/logevents
//
// Example file:
//
//	name: wiki-data-log
//	secrets:
//	  base_url: ${BASE_URL}
//	timeouts:
//	  request: 20s
//	sink:
//	  type: file
//	  directory: ./out
//	  compression: gzip
//	state_store:
//	  type: file
//	  path: ./state.json
package config
