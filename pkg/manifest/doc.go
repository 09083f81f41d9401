/*
Package manifest loads declarative cluster manifests and applies them to a
controller.

A manifest is a YAML document with one list per object kind:

	nodes:
	  - name: alpha
	    type: satellite
	    net_interfaces:
	      - name: default
	        address: 10.0.0.1
	storage_pool_definitions:
	  - name: DfltStorPool
	storage_pools:
	  - node: alpha
	    name: DfltStorPool
	resource_definitions:
	  - name: r1
	    volume_definitions:
	      - size_kib: 1048576
	resources:
	  - node: alpha
	    name: r1

Apply creates nodes, storage pool definitions, storage pools, resource
definitions, resources and then connections, in that order. Objects that
already exist are skipped, so a manifest can be applied on every start.
*/
package manifest
